package tmc2130

// TMC2130 register addresses
// Based on TMC2130 datasheet Rev. 1.15
const (
	GCONF      = 0x00 // Global configuration flags
	GSTAT      = 0x01 // Global status flags (clear on read)
	IOIN       = 0x04 // Reads the state of all input pins
	IHOLD_IRUN = 0x10 // Driver current control
	TPOWERDOWN = 0x11 // Delay after standstill before power down
	TSTEP      = 0x12 // Measured time between two steps (read only)
	TPWMTHRS   = 0x13 // Upper velocity for StealthChop
	TCOOLTHRS  = 0x14 // Lower threshold velocity for CoolStep
	THIGH      = 0x15 // High velocity threshold
	XDIRECT    = 0x2D // Direct coil current control
	VDCMIN     = 0x33 // DcStep minimum velocity
	MSCNT      = 0x6A // Microstep counter (read only)
	MSCURACT   = 0x6B // Actual microstep current (read only)
	CHOPCONF   = 0x6C // Chopper configuration
	COOLCONF   = 0x6D // CoolStep configuration
	DCCTRL     = 0x6E // DcStep configuration
	DRV_STATUS = 0x6F // Driver status flags and current level read back
	PWMCONF    = 0x70 // StealthChop PWM configuration
	PWM_SCALE  = 0x71 // PWM scale value (read only)
	ENCM_CTRL  = 0x72 // Encoder mode configuration
	LOST_STEPS = 0x73 // Lost steps counter (read only)

	writeFlag = 0x80
)

// GCONF bits
const (
	GCONF_I_SCALE_ANALOG     = 1 << 0
	GCONF_INTERNAL_RSENSE    = 1 << 1
	GCONF_EN_PWM_MODE        = 1 << 2
	GCONF_ENC_COMMUTATION    = 1 << 3
	GCONF_SHAFT              = 1 << 4
	GCONF_DIAG0_ERROR        = 1 << 5
	GCONF_DIAG0_OTPW         = 1 << 6
	GCONF_DIAG0_STALL        = 1 << 7
	GCONF_DIAG1_STALL        = 1 << 8
	GCONF_DIAG0_INT_PUSHPULL = 1 << 12
)

// CHOPCONF fields
const (
	CHOPCONF_TOFF_SHIFT  = 0
	CHOPCONF_HSTRT_SHIFT = 4
	CHOPCONF_HEND_SHIFT  = 7
	CHOPCONF_TBL_SHIFT   = 15
	CHOPCONF_VSENSE      = 1 << 17
	CHOPCONF_MRES_SHIFT  = 24
	CHOPCONF_MRES_MASK   = 0xF << CHOPCONF_MRES_SHIFT
	CHOPCONF_INTPOL      = 1 << 28
)

// IHOLD_IRUN fields
const (
	IHOLD_SHIFT      = 0
	IRUN_SHIFT       = 8
	IHOLDDELAY_SHIFT = 16
	currentMask      = 0x1F
)

// SPI status byte returned with every datagram
const (
	StatusResetFlag   = 1 << 0
	StatusDriverError = 1 << 1
	StatusStallGuard  = 1 << 2
	StatusStandstill  = 1 << 3
)

// DRV_STATUS bits
const (
	DRV_STATUS_SG_RESULT_MASK  = 0x3FF
	DRV_STATUS_FSACTIVE        = 1 << 15
	DRV_STATUS_CS_ACTUAL_SHIFT = 16
	DRV_STATUS_STALLGUARD      = 1 << 24
	DRV_STATUS_OT              = 1 << 25
	DRV_STATUS_OTPW            = 1 << 26
	DRV_STATUS_S2GA            = 1 << 27
	DRV_STATUS_S2GB            = 1 << 28
	DRV_STATUS_OLA             = 1 << 29
	DRV_STATUS_OLB             = 1 << 30
	DRV_STATUS_STST            = 1 << 31
)
