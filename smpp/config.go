// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package smpp

import (
	"fmt"
	"net"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/absmach/smppgate/pkg/errors"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// Config errors.
var (
	ErrConfigRead         = errors.New("failed to read config file")
	ErrConfigDecode       = errors.New("failed to decode config")
	ErrMissingTransport   = errors.New("transport_name is required")
	ErrMissingCredentials = errors.New("system_id and password are required")
	ErrMissingEndpoint    = errors.New("either endpoint or host and port must be set")
)

// BindMode selects which bind PDU the session issues after connect.
type BindMode string

// Supported bind modes.
const (
	BindTransceiver BindMode = "transceiver"
	BindTransmitter BindMode = "transmitter"
	BindReceiver    BindMode = "receiver"
)

// Type-of-number names accepted for addr_ton, mapped to wire octets.
var tonNames = map[string]uint8{
	"unknown":           0x00,
	"international":     0x01,
	"national":          0x02,
	"network_specific":  0x03,
	"subscriber_number": 0x04,
	"alphanumeric":      0x05,
	"abbreviated":       0x06,
}

// Numbering-plan-indicator names accepted for addr_npi.
var npiNames = map[string]uint8{
	"unknown":     0x00,
	"isdn":        0x01,
	"data":        0x03,
	"telex":       0x04,
	"land_mobile": 0x06,
	"national":    0x08,
	"private":     0x09,
	"ermes":       0x0a,
}

// DeliveryReportConfig configures the delivery-report processor.
type DeliveryReportConfig struct {
	Regex string `mapstructure:"delivery_report_regex"`
}

// DeliverConfig configures the short-message processor.
type DeliverConfig struct {
	DataCodingOverrides map[int]string `mapstructure:"data_coding_overrides"`
}

// SubmitConfig configures the submit processor. The three segmentation
// switches are mutually exclusive.
type SubmitConfig struct {
	SubmitSMEncoding   string `mapstructure:"submit_sm_encoding"`
	SubmitSMDataCoding int    `mapstructure:"submit_sm_data_coding"`
	SendLongMessages   bool   `mapstructure:"send_long_messages"`
	SendMultipartSAR   bool   `mapstructure:"send_multipart_sar"`
	SendMultipartUDH   bool   `mapstructure:"send_multipart_udh"`
}

// TransportConfig is the per-transport configuration file contents.
// Durations accept either Go duration strings or bare seconds; the
// legacy flat shape, which spreads processor options at the top level
// and names the peer with a twisted_endpoint string, is migrated to
// this form before validation.
type TransportConfig struct {
	TransportName string `mapstructure:"transport_name"`

	Endpoint string `mapstructure:"endpoint"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`

	BindMode           BindMode `mapstructure:"bind_mode"`
	SystemID           string   `mapstructure:"system_id"`
	Password           string   `mapstructure:"password"`
	SystemType         string   `mapstructure:"system_type"`
	InterfaceVersion   string   `mapstructure:"interface_version"`
	AddressRange       string   `mapstructure:"address_range"`
	AddrTON            string   `mapstructure:"addr_ton"`
	AddrNPI            string   `mapstructure:"addr_npi"`
	SourceAddrTON      uint8    `mapstructure:"source_addr_ton"`
	SourceAddrNPI      uint8    `mapstructure:"source_addr_npi"`
	DestAddrTON        uint8    `mapstructure:"dest_addr_ton"`
	DestAddrNPI        uint8    `mapstructure:"dest_addr_npi"`
	RegisteredDelivery bool     `mapstructure:"registered_delivery"`

	EnquireLinkInterval time.Duration `mapstructure:"enquire_link_interval"`
	ResponseWindow      time.Duration `mapstructure:"response_window"`
	MTTPS               int           `mapstructure:"mt_tps"`
	ThrottleDelay       time.Duration `mapstructure:"throttle_delay"`
	SubmitSMExpiry      time.Duration `mapstructure:"submit_sm_expiry"`
	ThirdPartyIDExpiry  time.Duration `mapstructure:"third_party_id_expiry"`
	MultipartExpiry     time.Duration `mapstructure:"multipart_expiry"`

	DeliveryReportProcessor      string `mapstructure:"delivery_report_processor"`
	DeliverShortMessageProcessor string `mapstructure:"deliver_short_message_processor"`
	SubmitShortMessageProcessor  string `mapstructure:"submit_short_message_processor"`

	DeliveryReportProcessorConfig      DeliveryReportConfig `mapstructure:"delivery_report_processor_config"`
	DeliverShortMessageProcessorConfig DeliverConfig        `mapstructure:"deliver_short_message_processor_config"`
	SubmitShortMessageProcessorConfig  SubmitConfig         `mapstructure:"submit_short_message_processor_config"`
}

// DefaultTransportConfig returns a TransportConfig carrying every
// default; decoding a config file overlays it.
func DefaultTransportConfig() TransportConfig {
	return TransportConfig{
		BindMode:            BindTransceiver,
		InterfaceVersion:    "34",
		AddrTON:             "unknown",
		AddrNPI:             "unknown",
		RegisteredDelivery:  true,
		EnquireLinkInterval: 55 * time.Second,
		ResponseWindow:      30 * time.Second,
		ThrottleDelay:       time.Second,
		SubmitSMExpiry:      24 * time.Hour,
		ThirdPartyIDExpiry:  168 * time.Hour,
		MultipartExpiry:     time.Hour,

		DeliveryReportProcessor:      DefaultProcessor,
		DeliverShortMessageProcessor: DefaultProcessor,
		SubmitShortMessageProcessor:  DefaultProcessor,

		DeliveryReportProcessorConfig: DeliveryReportConfig{
			Regex: DefaultDeliveryReportRegex,
		},
		SubmitShortMessageProcessorConfig: SubmitConfig{
			SubmitSMEncoding:   "utf-8",
			SubmitSMDataCoding: 1,
		},
	}
}

// LoadTransportConfig reads a transport configuration file, migrates
// legacy shapes and validates the result.
func LoadTransportConfig(path string) (TransportConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return TransportConfig{}, errors.Wrap(ErrConfigRead, err)
	}

	return ParseTransportConfig(v.AllSettings())
}

// ParseTransportConfig decodes a raw configuration map. Both the
// nested shape and the legacy flat shape are accepted; downstream code
// only ever sees the nested form.
func ParseTransportConfig(raw map[string]interface{}) (TransportConfig, error) {
	migrateLegacyConfig(raw)

	cfg := DefaultTransportConfig()
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       durationHook,
		WeaklyTypedInput: true,
		Result:           &cfg,
	})
	if err != nil {
		return TransportConfig{}, errors.Wrap(ErrConfigDecode, err)
	}
	if err := dec.Decode(raw); err != nil {
		return TransportConfig{}, errors.Wrap(ErrConfigDecode, err)
	}
	if err := cfg.Validate(); err != nil {
		return TransportConfig{}, err
	}

	return cfg, nil
}

// legacyProcessorKeys maps flat legacy processor options to the nested
// block each belongs to.
var legacyProcessorKeys = map[string]string{
	"delivery_report_regex": "delivery_report_processor_config",
	"data_coding_overrides": "deliver_short_message_processor_config",
	"submit_sm_encoding":    "submit_short_message_processor_config",
	"submit_sm_data_coding": "submit_short_message_processor_config",
	"send_long_messages":    "submit_short_message_processor_config",
	"send_multipart_sar":    "submit_short_message_processor_config",
	"send_multipart_udh":    "submit_short_message_processor_config",
}

func migrateLegacyConfig(raw map[string]interface{}) {
	for key, block := range legacyProcessorKeys {
		val, ok := raw[key]
		if !ok {
			continue
		}
		nested, _ := raw[block].(map[string]interface{})
		if nested == nil {
			nested = make(map[string]interface{})
		}
		if _, taken := nested[key]; !taken {
			nested[key] = val
		}
		raw[block] = nested
		delete(raw, key)
	}

	if ep, ok := raw["twisted_endpoint"].(string); ok {
		if _, taken := raw["endpoint"]; !taken {
			raw["endpoint"] = parseTwistedEndpoint(ep)
		}
		delete(raw, "twisted_endpoint")
	}
}

// parseTwistedEndpoint converts the legacy client endpoint form
// "tcp:host=127.0.0.1:port=2775" to "127.0.0.1:2775". Values already
// in host:port form pass through unchanged.
func parseTwistedEndpoint(s string) string {
	if !strings.Contains(s, "=") {
		return s
	}
	var host, port string
	for _, part := range strings.Split(s, ":") {
		k, v, ok := strings.Cut(part, "=")
		if !ok {
			continue
		}
		switch k {
		case "host":
			host = v
		case "port":
			port = v
		}
	}
	if host == "" || port == "" {
		return s
	}

	return net.JoinHostPort(host, port)
}

// durationHook decodes durations from Go duration strings or from bare
// numbers, which legacy configs express in seconds.
func durationHook(from, to reflect.Type, data interface{}) (interface{}, error) {
	if to != reflect.TypeOf(time.Duration(0)) {
		return data, nil
	}
	switch from.Kind() {
	case reflect.String:
		s := data.(string)
		if d, err := time.ParseDuration(s); err == nil {
			return d, nil
		}
		secs, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid duration %q", s)
		}
		return time.Duration(secs * float64(time.Second)), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return time.Duration(reflect.ValueOf(data).Int()) * time.Second, nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return time.Duration(reflect.ValueOf(data).Uint()) * time.Second, nil
	case reflect.Float32, reflect.Float64:
		return time.Duration(reflect.ValueOf(data).Float() * float64(time.Second)), nil
	default:
		return data, nil
	}
}

// Validate checks required fields, name mappings and the segmentation
// mutual exclusion. It reports the first violation found.
func (c TransportConfig) Validate() error {
	if c.TransportName == "" {
		return ErrMissingTransport
	}
	if c.SystemID == "" || c.Password == "" {
		return ErrMissingCredentials
	}
	if c.Endpoint == "" && (c.Host == "" || c.Port == 0) {
		return ErrMissingEndpoint
	}
	switch c.BindMode {
	case BindTransceiver, BindTransmitter, BindReceiver:
	default:
		return fmt.Errorf("unknown bind_mode: %q", c.BindMode)
	}
	if _, err := tonOctet(c.AddrTON); err != nil {
		return err
	}
	if _, err := npiOctet(c.AddrNPI); err != nil {
		return err
	}
	if _, err := interfaceVersionOctet(c.InterfaceVersion); err != nil {
		return err
	}
	if c.MTTPS < 0 {
		return fmt.Errorf("mt_tps must not be negative: %d", c.MTTPS)
	}
	if c.ThrottleDelay <= 0 {
		return fmt.Errorf("throttle_delay must be positive: %s", c.ThrottleDelay)
	}

	return c.SubmitShortMessageProcessorConfig.validate()
}

func (c SubmitConfig) validate() error {
	var enabled []string
	if c.SendLongMessages {
		enabled = append(enabled, "send_long_messages")
	}
	if c.SendMultipartSAR {
		enabled = append(enabled, "send_multipart_sar")
	}
	if c.SendMultipartUDH {
		enabled = append(enabled, "send_multipart_udh")
	}
	if len(enabled) > 1 {
		return errors.New("The following parameters are mutually exclusive: " + strings.Join(enabled, ", "))
	}

	return nil
}

// Addr returns the SMSC address to dial.
func (c TransportConfig) Addr() string {
	if c.Endpoint != "" {
		return c.Endpoint
	}

	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

func tonOctet(name string) (uint8, error) {
	ton, ok := tonNames[name]
	if !ok {
		return 0, fmt.Errorf("unknown addr_ton: %q", name)
	}

	return ton, nil
}

func npiOctet(name string) (uint8, error) {
	npi, ok := npiNames[name]
	if !ok {
		return 0, fmt.Errorf("unknown addr_npi: %q", name)
	}

	return npi, nil
}

// interfaceVersionOctet maps the two-digit version string of the bind
// parameter block, e.g. "34", to its wire octet 0x34.
func interfaceVersionOctet(v string) (uint8, error) {
	n, err := strconv.ParseUint(v, 16, 8)
	if err != nil {
		return 0, fmt.Errorf("invalid interface_version: %q", v)
	}

	return uint8(n), nil
}
