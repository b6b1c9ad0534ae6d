package model

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
)

type OptionType string

const (
	OptionString OptionType = "string"
	OptionNumber OptionType = "number"
	OptionBool   OptionType = "boolean"
	OptionSelect OptionType = "select"
)

// ConfigOption is one tunable setting of a service's configuration file.
// The concrete types are StringOption, NumberOption, BoolOption and
// SelectOption; values are kept as their config-file spelling.
type ConfigOption interface {
	Base() OptionBase
	Type() OptionType
	DefaultValue() string
	// Normalize validates v and returns the value as it should be stored.
	Normalize(v string) (string, error)
}

// OptionBase holds the attributes shared by every option variant.
type OptionBase struct {
	Key             string
	Label           string
	Description     string
	Unit            string
	RestartRequired bool
	// References names another service whose installed versions this
	// option selects between, e.g. the PHP-FPM version nginx proxies to.
	References string
}

type StringOption struct {
	OptionBase
	Default string
}

func (o StringOption) Base() OptionBase     { return o.OptionBase }
func (o StringOption) Type() OptionType     { return OptionString }
func (o StringOption) DefaultValue() string { return o.Default }

func (o StringOption) Normalize(v string) (string, error) {
	if strings.ContainsAny(v, "\n\r") {
		return "", fmt.Errorf("%s: value must be a single line", o.Key)
	}
	return strings.TrimSpace(v), nil
}

type NumberOption struct {
	OptionBase
	Default float64
	Min     *float64
	Max     *float64
}

func (o NumberOption) Base() OptionBase     { return o.OptionBase }
func (o NumberOption) Type() OptionType     { return OptionNumber }
func (o NumberOption) DefaultValue() string { return formatNumber(o.Default) }

func (o NumberOption) Normalize(v string) (string, error) {
	n, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return "", fmt.Errorf("%s: %q is not a number", o.Key, v)
	}
	if o.Min != nil && n < *o.Min {
		return "", fmt.Errorf("%s: %s is below the minimum %s", o.Key, formatNumber(n), formatNumber(*o.Min))
	}
	if o.Max != nil && n > *o.Max {
		return "", fmt.Errorf("%s: %s is above the maximum %s", o.Key, formatNumber(n), formatNumber(*o.Max))
	}
	return formatNumber(n), nil
}

// BoolOption renders true/false using the spelling the target config file
// expects ("on"/"off", "yes"/"no", "1"/"0").
type BoolOption struct {
	OptionBase
	Default    bool
	TrueValue  string
	FalseValue string
}

func (o BoolOption) Base() OptionBase { return o.OptionBase }
func (o BoolOption) Type() OptionType { return OptionBool }

func (o BoolOption) DefaultValue() string {
	if o.Default {
		return o.spelling(true)
	}
	return o.spelling(false)
}

func (o BoolOption) Normalize(v string) (string, error) {
	s := strings.ToLower(strings.TrimSpace(v))
	switch {
	case s == strings.ToLower(o.spelling(true)):
		return o.spelling(true), nil
	case s == strings.ToLower(o.spelling(false)):
		return o.spelling(false), nil
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		switch s {
		case "on", "yes":
			b = true
		case "off", "no":
			b = false
		default:
			return "", fmt.Errorf("%s: %q is not a boolean", o.Key, v)
		}
	}
	return o.spelling(b), nil
}

func (o BoolOption) spelling(b bool) string {
	if b {
		if o.TrueValue != "" {
			return o.TrueValue
		}
		return "true"
	}
	if o.FalseValue != "" {
		return o.FalseValue
	}
	return "false"
}

type SelectOption struct {
	OptionBase
	Default string
	Options []string
}

func (o SelectOption) Base() OptionBase     { return o.OptionBase }
func (o SelectOption) Type() OptionType     { return OptionSelect }
func (o SelectOption) DefaultValue() string { return o.Default }

func (o SelectOption) Normalize(v string) (string, error) {
	v = strings.TrimSpace(v)
	if !slices.Contains(o.Options, v) {
		return "", fmt.Errorf("%s: %q is not one of %s", o.Key, v, strings.Join(o.Options, ", "))
	}
	return v, nil
}

// OptionView is the JSON shape of a config option together with its current value.
type OptionView struct {
	Key             string     `json:"key"`
	Label           string     `json:"label"`
	Description     string     `json:"description,omitempty"`
	Type            OptionType `json:"type"`
	Default         string     `json:"default"`
	Current         *string    `json:"current,omitempty"`
	Options         []string   `json:"options,omitempty"`
	Min             *float64   `json:"min,omitempty"`
	Max             *float64   `json:"max,omitempty"`
	Unit            string     `json:"unit,omitempty"`
	RestartRequired bool       `json:"restart_required"`
}

// DescribeOption builds the view of opt. current is nil when the option has
// never been set.
func DescribeOption(opt ConfigOption, current *string) OptionView {
	b := opt.Base()
	v := OptionView{
		Key:             b.Key,
		Label:           b.Label,
		Description:     b.Description,
		Type:            opt.Type(),
		Default:         opt.DefaultValue(),
		Current:         current,
		Unit:            b.Unit,
		RestartRequired: b.RestartRequired,
	}
	switch o := opt.(type) {
	case NumberOption:
		v.Min, v.Max = o.Min, o.Max
	case SelectOption:
		v.Options = slices.Clone(o.Options)
	case BoolOption:
		v.Options = []string{o.spelling(true), o.spelling(false)}
	}
	return v
}

// OptionDef is the flat, YAML-friendly form of an option. NewOption turns
// it into the matching variant.
type OptionDef struct {
	Key         string   `yaml:"key"`
	Label       string   `yaml:"label"`
	Description string   `yaml:"description"`
	Type        string   `yaml:"type"`
	Default     string   `yaml:"default"`
	Options     []string `yaml:"options"`
	Min         *float64 `yaml:"min"`
	Max         *float64 `yaml:"max"`
	Unit        string   `yaml:"unit"`
	Restart     bool     `yaml:"restart"`
	References  string   `yaml:"references"`
	TrueValue   string   `yaml:"true_value"`
	FalseValue  string   `yaml:"false_value"`
}

// NewOption validates def and builds the typed option.
func NewOption(def OptionDef) (ConfigOption, error) {
	if def.Key == "" {
		return nil, fmt.Errorf("option key is required")
	}
	base := OptionBase{
		Key:             def.Key,
		Label:           def.Label,
		Description:     def.Description,
		Unit:            def.Unit,
		RestartRequired: def.Restart,
		References:      def.References,
	}
	if base.Label == "" {
		base.Label = def.Key
	}

	switch OptionType(def.Type) {
	case OptionString, "":
		return StringOption{OptionBase: base, Default: def.Default}, nil
	case OptionNumber:
		o := NumberOption{OptionBase: base, Min: def.Min, Max: def.Max}
		if def.Default != "" {
			n, err := strconv.ParseFloat(def.Default, 64)
			if err != nil {
				return nil, fmt.Errorf("option %s: default %q is not a number", def.Key, def.Default)
			}
			o.Default = n
		}
		return o, nil
	case OptionBool:
		o := BoolOption{OptionBase: base, TrueValue: def.TrueValue, FalseValue: def.FalseValue}
		if def.Default != "" {
			n, err := o.Normalize(def.Default)
			if err != nil {
				return nil, fmt.Errorf("option %s: %w", def.Key, err)
			}
			o.Default = n == o.spelling(true)
		}
		return o, nil
	case OptionSelect:
		if len(def.Options) == 0 && def.References == "" {
			return nil, fmt.Errorf("option %s: select requires options", def.Key)
		}
		o := SelectOption{OptionBase: base, Default: def.Default, Options: slices.Clone(def.Options)}
		if def.Default != "" && len(o.Options) > 0 && !slices.Contains(o.Options, def.Default) {
			return nil, fmt.Errorf("option %s: default %q is not an option", def.Key, def.Default)
		}
		return o, nil
	default:
		return nil, fmt.Errorf("option %s: unknown type %q", def.Key, def.Type)
	}
}

func formatNumber(n float64) string {
	return strconv.FormatFloat(n, 'f', -1, 64)
}
