package calendar

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// File is the YAML layout of a market calendar file:
//
//	timezone: Asia/Seoul
//	holidays:
//	  - 2025-01-28
//	  - 2025-01-29
type File struct {
	Timezone string   `yaml:"timezone"`
	Holidays []string `yaml:"holidays"`
}

// Decode reads a calendar file. Unknown fields are rejected.
func Decode(r io.Reader) (*File, error) {
	var f File
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true) // 오타 필드 즉시 실패
	if err := dec.Decode(&f); err != nil && err != io.EOF {
		return nil, fmt.Errorf("decode calendar file: %w", err)
	}
	return &f, nil
}

// LoadFile builds a calendar from a YAML file merged with extra holidays.
// The file's timezone wins over fallbackTZ when set.
func LoadFile(path string, extra []string, fallbackTZ string) (*Calendar, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read calendar file: %w", err)
	}

	f, err := Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	tz := f.Timezone
	if tz == "" {
		tz = fallbackTZ
	}
	holidays := append(append([]string{}, f.Holidays...), extra...)
	return New(holidays, tz)
}
