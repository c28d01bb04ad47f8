package report

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// RecordType is a DNS record type included in the report.
type RecordType string

const (
	RecordA     RecordType = "A"
	RecordAAAA  RecordType = "AAAA"
	RecordMX    RecordType = "MX"
	RecordNS    RecordType = "NS"
	RecordCNAME RecordType = "CNAME"
	RecordTXT   RecordType = "TXT"
)

// RecordTypes lists the queried types in presentation order.
var RecordTypes = []RecordType{RecordA, RecordAAAA, RecordMX, RecordNS, RecordCNAME, RecordTXT}

// NoMatchingRecord is the sentinel for a type that resolved to zero records.
const NoMatchingRecord = "no matching record"

// DNSAnswer is either a list of formatted records or an inline error.
type DNSAnswer struct {
	Values []string
	Error  string
}

// Failed reports whether the lookup for this type failed.
func (a DNSAnswer) Failed() bool {
	return a.Error != ""
}

func (a DNSAnswer) MarshalJSON() ([]byte, error) {
	if a.Error != "" {
		return json.Marshal(a.Error)
	}
	if a.Values == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(a.Values)
}

func (a *DNSAnswer) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*a = DNSAnswer{Error: s}
		return nil
	}
	var values []string
	if err := json.Unmarshal(data, &values); err != nil {
		return err
	}
	if len(values) == 0 {
		// [] and null both decode to the zero answer, which encodes as [].
		values = nil
	}
	*a = DNSAnswer{Values: values}
	return nil
}

// DNSRecordSet holds the per-type answers and an optional general error.
// Both may be present at once.
type DNSRecordSet struct {
	Records map[RecordType]DNSAnswer
	Error   string
}

// MarshalJSON emits record types in presentation order followed by the
// general error, if any.
func (s DNSRecordSet) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	first := true
	write := func(key string, val []byte) {
		if !first {
			buf.WriteByte(',')
		}
		first = false
		k, _ := json.Marshal(key)
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(val)
	}
	for _, rt := range RecordTypes {
		answer, ok := s.Records[rt]
		if !ok {
			continue
		}
		val, err := json.Marshal(answer)
		if err != nil {
			return nil, err
		}
		write(string(rt), val)
	}
	if s.Error != "" {
		val, _ := json.Marshal(s.Error)
		write("error", val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (s *DNSRecordSet) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := DNSRecordSet{Records: make(map[RecordType]DNSAnswer, len(raw))}
	for key, val := range raw {
		if key == "error" {
			if err := json.Unmarshal(val, &out.Error); err != nil {
				return fmt.Errorf("dns error field: %w", err)
			}
			continue
		}
		var answer DNSAnswer
		if err := json.Unmarshal(val, &answer); err != nil {
			return fmt.Errorf("dns %s: %w", key, err)
		}
		out.Records[RecordType(key)] = answer
	}
	*s = out
	return nil
}
