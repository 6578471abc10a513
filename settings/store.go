package settings

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"sync"

	"gorbl/core"
	"gorbl/protocol"
)

// Extension lets a driver contribute its own settings
type Extension interface {
	// Settings returns the driver's entries. axis selects the group that is
	// dumped after the axis settings rather than after the global ones.
	Settings(axis bool) []Entry

	// Set applies a driver setting. handled is false when id is unknown to
	// the driver.
	Set(id ID, value float64) (status protocol.StatusCode, handled bool)
}

// Restore selects what Restore resets
type Restore uint8

const (
	RestoreDefaults Restore = 1 << iota
	RestoreParameters
	RestoreStartupLines
	RestoreBuildInfo

	RestoreAll = RestoreDefaults | RestoreParameters | RestoreStartupLines | RestoreBuildInfo
)

const blockGlobal = "global"

type globalEntry struct {
	ID    uint16  `msgpack:"id"`
	Value float64 `msgpack:"v"`
}

// Store is the settings store. Values are kept in stored units (for example
// acceleration in mm/min²) and converted for display.
type Store struct {
	mu     sync.RWMutex
	caps   core.Capabilities
	nvs    Backend
	values map[ID]float64
	ext    Extension
	watch  []func(ID)
}

// NewStore creates a store holding defaults. Call Load to read the NVS image.
func NewStore(nvs Backend, caps core.Capabilities) *Store {
	s := &Store{
		caps:   caps,
		nvs:    nvs,
		values: make(map[ID]float64),
	}
	s.applyDefaults()
	return s
}

// Capabilities returns the driver capabilities the store was built with
func (s *Store) Capabilities() core.Capabilities {
	return s.caps
}

// SetExtension installs the driver settings hook
func (s *Store) SetExtension(ext Extension) {
	s.mu.Lock()
	s.ext = ext
	s.mu.Unlock()
}

// Watch registers fn to be called after a setting has been stored
func (s *Store) Watch(fn func(id ID)) {
	s.mu.Lock()
	s.watch = append(s.watch, fn)
	s.mu.Unlock()
}

func (s *Store) notify(id ID) {
	s.mu.RLock()
	watch := s.watch
	s.mu.RUnlock()
	for _, fn := range watch {
		fn(id)
	}
}

// LoadBlock reads a named block owned by an extension
func (s *Store) LoadBlock(name string, v interface{}) error {
	return readBlock(s.nvs, name, v)
}

// SaveBlock writes a named block owned by an extension
func (s *Store) SaveBlock(name string, v interface{}) error {
	return writeBlock(s.nvs, name, v)
}

// Extension returns the driver settings hook, if any
func (s *Store) Extension() Extension {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ext
}

func (s *Store) applyDefaults() {
	for _, d := range globalSettings {
		s.values[d.ID] = d.Default
	}
	for axis := 0; axis < core.NumAxes; axis++ {
		s.values[HomingCycle1+ID(axis)] = homingCycleDefaults[axis]
		for g := AxisSetting(0); g < axisSettingCount; g++ {
			d := axisDescriptor(g, axis)
			s.values[d.ID] = d.Default
		}
	}
}

// Load reads the global settings block. A missing or corrupt block is
// replaced by defaults and restored is true.
func (s *Store) Load() (restored bool, err error) {
	var entries []globalEntry
	if err := readBlock(s.nvs, blockGlobal, &entries); err != nil {
		if rerr := s.Restore(RestoreAll); rerr != nil {
			return true, rerr
		}
		return true, nil
	}

	s.mu.Lock()
	for _, e := range entries {
		if _, ok := s.descriptor(ID(e.ID)); ok {
			s.values[ID(e.ID)] = e.Value
		}
	}
	s.mu.Unlock()
	return false, nil
}

// Restore resets the selected groups and persists the result
func (s *Store) Restore(r Restore) error {
	if r&RestoreDefaults != 0 {
		s.mu.Lock()
		s.applyDefaults()
		ids := make([]ID, 0, len(s.values))
		for id := range s.values {
			ids = append(ids, id)
		}
		s.mu.Unlock()
		if err := s.save(); err != nil {
			return err
		}
		for _, id := range ids {
			s.notify(id)
		}
	}
	if r&RestoreParameters != 0 {
		for slot := 0; slot < NumCoordSlots; slot++ {
			if err := s.WriteCoordData(slot, core.Vector{}); err != nil {
				return err
			}
		}
		if err := writeBlock(s.nvs, blockTools, make([][]float64, s.caps.Tools)); err != nil {
			return err
		}
	}
	if r&RestoreStartupLines != 0 {
		if err := writeBlock(s.nvs, blockStartup, make([]string, NumStartupLines)); err != nil {
			return err
		}
	}
	if r&RestoreBuildInfo != 0 {
		if err := writeBlock(s.nvs, blockBuildInfo, ""); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) save() error {
	s.mu.RLock()
	entries := make([]globalEntry, 0, len(s.values))
	for id, v := range s.values {
		entries = append(entries, globalEntry{ID: uint16(id), Value: v})
	}
	s.mu.RUnlock()

	sort.Slice(entries, func(i, j int) bool { return entries[i].ID < entries[j].ID })
	return writeBlock(s.nvs, blockGlobal, entries)
}

// Descriptor returns the descriptor of a core setting
func (s *Store) Descriptor(id ID) (Descriptor, bool) {
	return s.descriptor(id)
}

func (s *Store) descriptor(id ID) (Descriptor, bool) {
	if id >= AxisSettingsBase {
		off := id - AxisSettingsBase
		g := AxisSetting(off / AxisSettingsIncrement)
		axis := int(off % AxisSettingsIncrement)
		if g >= axisSettingCount || axis >= core.NumAxes {
			return Descriptor{}, false
		}
		return axisDescriptor(g, axis), true
	}
	if id >= HomingCycle1 && id < HomingCycle1+core.NumAxes {
		return uintSetting(id, homingCycleDefaults[id-HomingCycle1]), true
	}
	for _, d := range globalSettings {
		if d.ID == id {
			return d, true
		}
	}
	return Descriptor{}, false
}

func (s *Store) available(d Descriptor) bool {
	switch d.Requires {
	case RequiresSpindleSync:
		return s.caps.SpindleSync
	case RequiresStepperCurrent:
		return s.caps.StepperCurrent
	}
	return true
}

// Value returns a setting in stored units
func (s *Store) Value(id ID) float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.values[id]
}

// Set parses text and stores it as setting id
func (s *Store) Set(id ID, text string) protocol.StatusCode {
	v, ok := parseNumber(text)
	if !ok {
		return protocol.StatusBadNumberFormat
	}
	return s.SetValue(id, v)
}

// SetValue validates and stores a displayed value
func (s *Store) SetValue(id ID, v float64) protocol.StatusCode {
	d, ok := s.descriptor(id)
	if !ok {
		if ext := s.Extension(); ext != nil {
			if status, handled := ext.Set(id, v); handled {
				return status
			}
		}
		return protocol.StatusInvalidStatement
	}
	if !s.available(d) {
		return protocol.StatusSettingDisabled
	}
	if d.Requires == RequiresVariableSpindle && !s.caps.VariableSpindle {
		return protocol.StatusSettingDisabledLaser
	}

	switch d.Kind {
	case KindUint:
		if v < 0 {
			return protocol.StatusNegativeValue
		}
		if v > math.MaxUint32 {
			return protocol.StatusOverflow
		}
		v = math.Trunc(v)
	case KindFloat:
		p := math.Pow(10, float64(d.Decimals))
		v = math.Round(v*p) / p
	}

	if d.HasMin && v < d.Min {
		if id == PulseMicroseconds {
			return protocol.StatusSettingStepPulseMin
		}
		return protocol.StatusNonPositiveValue
	}

	s.mu.Lock()
	s.values[id] = d.fromDisplay(v)
	s.mu.Unlock()

	if err := s.save(); err != nil {
		core.DebugPrintln("settings: save failed: " + err.Error())
		return protocol.StatusSettingReadFail
	}
	s.notify(id)
	return protocol.StatusOK
}

// ParseLine applies a "<id>=<value>" assignment, the text after '$'
func (s *Store) ParseLine(line string) protocol.StatusCode {
	eq := -1
	for i := 0; i < len(line); i++ {
		if line[i] == '=' {
			eq = i
			break
		}
	}
	if eq <= 0 {
		return protocol.StatusInvalidStatement
	}
	n, err := strconv.ParseUint(line[:eq], 10, 16)
	if err != nil {
		return protocol.StatusBadNumberFormat
	}
	return s.Set(ID(n), line[eq+1:])
}

func (s *Store) entry(d Descriptor) Entry {
	return Entry{ID: d.ID, Kind: d.Kind, Decimals: d.Decimals, Value: d.toDisplay(s.values[d.ID])}
}

// GlobalEntries returns the global settings in dump order, including the
// per-axis homing cycle masks
func (s *Store) GlobalEntries() []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Entry, 0, len(globalSettings)+core.NumAxes)
	for _, d := range globalSettings {
		if !s.available(d) {
			continue
		}
		e := s.entry(d)
		if d.Requires == RequiresVariableSpindle && !s.caps.VariableSpindle {
			e.Value = 0
		}
		out = append(out, e)
	}
	for axis := 0; axis < core.NumAxes; axis++ {
		out = append(out, s.entry(uintSetting(HomingCycle1+ID(axis), 0)))
	}
	return out
}

// AxisEntries returns the axis settings, group-major and axis-minor
func (s *Store) AxisEntries() []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Entry
	for g := AxisSetting(0); g < axisSettingCount; g++ {
		for axis := 0; axis < core.NumAxes; axis++ {
			d := axisDescriptor(g, axis)
			if !s.available(d) {
				break
			}
			out = append(out, s.entry(d))
		}
	}
	return out
}

// StatusReport returns the $10 mask
func (s *Store) StatusReport() StatusReport {
	return StatusReport(s.Value(StatusReportMask))
}

// ReportInches reports whether values are reported in inches
func (s *Store) ReportInches() bool {
	return s.Value(ReportInches) != 0
}

// Units returns the output unit selection
func (s *Store) Units() protocol.Units {
	return protocol.Units{Inches: s.ReportInches()}
}

// AxisValues returns group g for every axis in stored units
func (s *Store) AxisValues(g AxisSetting) core.Vector {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var v core.Vector
	for axis := range v {
		v[axis] = s.values[AxisID(g, axis)]
	}
	return v
}

// StepsPerMM returns the steps/mm setting of every axis
func (s *Store) StepsPerMM() core.Vector {
	return s.AxisValues(AxisStepsPerMM)
}

// parseNumber accepts an optional sign, digits and at most one decimal
// point. Exponents and special values are rejected.
func parseNumber(text string) (float64, bool) {
	if text == "" {
		return 0, false
	}
	i := 0
	if text[0] == '-' || text[0] == '+' {
		i++
	}
	digits, dots := 0, 0
	for ; i < len(text); i++ {
		switch c := text[i]; {
		case c >= '0' && c <= '9':
			digits++
		case c == '.':
			dots++
		default:
			return 0, false
		}
	}
	if digits == 0 || dots > 1 {
		return 0, false
	}
	v, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// String describes the store for logs
func (s *Store) String() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fmt.Sprintf("settings{%d values, ext=%v}", len(s.values), s.ext != nil)
}
