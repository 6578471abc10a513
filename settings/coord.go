package settings

import (
	"errors"
	"fmt"

	"gorbl/core"
)

// Coordinate slots. G54..G59.3 come first, then the two predefined positions.
const (
	CoordG54 = iota
	CoordG55
	CoordG56
	CoordG57
	CoordG58
	CoordG59
	CoordG59_1
	CoordG59_2
	CoordG59_3
	CoordG28
	CoordG30

	NumCoordSystems = CoordG28
	NumCoordSlots   = CoordG30 + 1
)

// NumStartupLines is the number of $N lines run after reset
const NumStartupLines = 2

const (
	blockTools     = "tools"
	blockStartup   = "startup"
	blockBuildInfo = "buildinfo"
)

var coordNames = [NumCoordSlots]string{
	"54", "55", "56", "57", "58", "59", "59.1", "59.2", "59.3", "28", "30",
}

// CoordName returns the G-code number of a slot, without the 'G'
func CoordName(slot int) string {
	if slot < 0 || slot >= NumCoordSlots {
		return ""
	}
	return coordNames[slot]
}

func coordBlock(slot int) string {
	return fmt.Sprintf("coord.%d", slot)
}

// ReadCoordData reads a slot from NVS. A slot never written reads as zero.
func (s *Store) ReadCoordData(slot int) (core.Vector, error) {
	var v core.Vector
	if slot < 0 || slot >= NumCoordSlots {
		return v, fmt.Errorf("coord slot %d out of range", slot)
	}
	var data []float64
	if err := readBlock(s.nvs, coordBlock(slot), &data); err != nil {
		if errors.Is(err, ErrNotFound) {
			return v, nil
		}
		return v, err
	}
	copy(v[:], data)
	return v, nil
}

// WriteCoordData persists a slot
func (s *Store) WriteCoordData(slot int, v core.Vector) error {
	if slot < 0 || slot >= NumCoordSlots {
		return fmt.Errorf("coord slot %d out of range", slot)
	}
	return writeBlock(s.nvs, coordBlock(slot), v[:])
}

func (s *Store) readTools() ([][]float64, error) {
	var tools [][]float64
	if err := readBlock(s.nvs, blockTools, &tools); err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	if len(tools) < s.caps.Tools {
		tools = append(tools, make([][]float64, s.caps.Tools-len(tools))...)
	}
	return tools[:s.caps.Tools], nil
}

// ToolOffsets returns the tool length offsets, index 0 being tool 1
func (s *Store) ToolOffsets() ([]core.Vector, error) {
	tools, err := s.readTools()
	if err != nil {
		return nil, err
	}
	out := make([]core.Vector, len(tools))
	for i, t := range tools {
		copy(out[i][:], t)
	}
	return out, nil
}

// SetToolOffset stores the offset of tool (1-based)
func (s *Store) SetToolOffset(tool int, v core.Vector) error {
	if tool < 1 || tool > s.caps.Tools {
		return fmt.Errorf("tool %d out of range", tool)
	}
	tools, err := s.readTools()
	if err != nil {
		return err
	}
	tools[tool-1] = append([]float64(nil), v[:]...)
	return writeBlock(s.nvs, blockTools, tools)
}

func (s *Store) readStartup() ([]string, error) {
	var lines []string
	if err := readBlock(s.nvs, blockStartup, &lines); err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	if len(lines) < NumStartupLines {
		lines = append(lines, make([]string, NumStartupLines-len(lines))...)
	}
	return lines[:NumStartupLines], nil
}

// StartupLine returns startup line n
func (s *Store) StartupLine(n int) (string, error) {
	if n < 0 || n >= NumStartupLines {
		return "", fmt.Errorf("startup line %d out of range", n)
	}
	lines, err := s.readStartup()
	if err != nil {
		return "", err
	}
	return lines[n], nil
}

// SetStartupLine stores startup line n; an empty line clears it
func (s *Store) SetStartupLine(n int, line string) error {
	if n < 0 || n >= NumStartupLines {
		return fmt.Errorf("startup line %d out of range", n)
	}
	lines, err := s.readStartup()
	if err != nil {
		return err
	}
	lines[n] = line
	return writeBlock(s.nvs, blockStartup, lines)
}

// BuildInfo returns the user build info string stored with $I=
func (s *Store) BuildInfo() (string, error) {
	var info string
	if err := readBlock(s.nvs, blockBuildInfo, &info); err != nil && !errors.Is(err, ErrNotFound) {
		return "", err
	}
	return info, nil
}

// SetBuildInfo stores the build info string
func (s *Store) SetBuildInfo(info string) error {
	return writeBlock(s.nvs, blockBuildInfo, info)
}
