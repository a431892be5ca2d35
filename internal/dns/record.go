package dns

import (
	"encoding/binary"
	"fmt"
	"net"
)

type Record struct {
	Name  string
	Type  uint16
	Class uint16
	TTL   uint32
	// Data is type-specific:
	// - A/AAAA/OPT/SOA: []byte
	// - CNAME/NS/PTR: string
	// - MX: MXData
	// - TXT: either string, []string, or []byte (raw)
	Data any
}

type MXData struct {
	Preference uint16
	Exchange   string
}

// SRVData is the rdata of an SRV record (RFC 2782).
type SRVData struct {
	Priority uint16
	Weight   uint16
	Port     uint16
	Target   string
}

// NAPTRData is the rdata of a NAPTR record (RFC 2915).
type NAPTRData struct {
	Order       uint16
	Preference  uint16
	Flag        NaptrFlag
	Service     string
	Regexp      string
	Replacement string
}

func ParseRecord(msg []byte, off *int) (Record, error) {
	name, err := DecodeName(msg, off)
	if err != nil {
		return Record{}, err
	}
	if *off+10 > len(msg) {
		return Record{}, fmt.Errorf("%w: unexpected EOF while reading DNS record", ErrDNSError)
	}
	rrType := binary.BigEndian.Uint16(msg[*off : *off+2])
	rrClass := binary.BigEndian.Uint16(msg[*off+2 : *off+4])
	ttl := binary.BigEndian.Uint32(msg[*off+4 : *off+8])
	rdlen := binary.BigEndian.Uint16(msg[*off+8 : *off+10])
	*off += 10
	start := *off
	if start+int(rdlen) > len(msg) {
		return Record{}, fmt.Errorf("%w: unexpected EOF while reading DNS record rdata", ErrDNSError)
	}

	var data any
	switch RecordType(rrType) {
	case TypeA:
		if rdlen != 4 {
			return Record{}, fmt.Errorf("%w: A record rdlength must be 4, got %d", ErrDNSError, rdlen)
		}
		b := make([]byte, 4)
		copy(b, msg[*off:*off+4])
		*off += 4
		data = b
	case TypeSRV:
		if *off+6 > len(msg) {
			return Record{}, fmt.Errorf("%w: unexpected EOF while reading SRV fields", ErrDNSError)
		}
		priority := binary.BigEndian.Uint16(msg[*off : *off+2])
		weight := binary.BigEndian.Uint16(msg[*off+2 : *off+4])
		port := binary.BigEndian.Uint16(msg[*off+4 : *off+6])
		*off += 6
		target, err := DecodeName(msg, off)
		if err != nil {
			return Record{}, err
		}
		if *off-start != int(rdlen) {
			return Record{}, fmt.Errorf("%w: invalid DNS record rdata length for SRV", ErrDNSError)
		}
		data = SRVData{Priority: priority, Weight: weight, Port: port, Target: target}
	case TypeNAPTR:
		if *off+4 > len(msg) {
			return Record{}, fmt.Errorf("%w: unexpected EOF while reading NAPTR order/preference", ErrDNSError)
		}
		order := binary.BigEndian.Uint16(msg[*off : *off+2])
		pref := binary.BigEndian.Uint16(msg[*off+2 : *off+4])
		*off += 4
		flagStr, err := readCharacterString(msg, off)
		if err != nil {
			return Record{}, err
		}
		if len(flagStr) != 1 {
			return Record{}, fmt.Errorf("%w: NAPTR flags field must be exactly one octet, got %d", ErrDNSError, len(flagStr))
		}
		service, err := readCharacterString(msg, off)
		if err != nil {
			return Record{}, err
		}
		regexpStr, err := readCharacterString(msg, off)
		if err != nil {
			return Record{}, err
		}
		replacement, err := DecodeName(msg, off)
		if err != nil {
			return Record{}, err
		}
		if *off-start != int(rdlen) {
			return Record{}, fmt.Errorf("%w: invalid DNS record rdata length for NAPTR", ErrDNSError)
		}
		data = NAPTRData{
			Order:       order,
			Preference:  pref,
			Flag:        ParseNaptrFlag(flagStr[0]),
			Service:     service,
			Regexp:      regexpStr,
			Replacement: replacement,
		}
	case TypeCNAME, TypeNS, TypePTR:
		n, err := DecodeName(msg, off)
		if err != nil {
			return Record{}, err
		}
		if *off-start != int(rdlen) {
			return Record{}, fmt.Errorf("%w: invalid DNS record rdata length for name-based type", ErrDNSError)
		}
		data = n
	case TypeMX:
		if *off+2 > len(msg) {
			return Record{}, fmt.Errorf("%w: unexpected EOF while reading MX preference", ErrDNSError)
		}
		pref := binary.BigEndian.Uint16(msg[*off : *off+2])
		*off += 2
		ex, err := DecodeName(msg, off)
		if err != nil {
			return Record{}, err
		}
		if *off-start != int(rdlen) {
			return Record{}, fmt.Errorf("%w: invalid DNS record rdata length for MX", ErrDNSError)
		}
		data = MXData{Preference: pref, Exchange: ex}
	default:
		b := make([]byte, rdlen)
		copy(b, msg[*off:*off+int(rdlen)])
		*off += int(rdlen)
		data = b
	}

	return Record{Name: name, Type: rrType, Class: rrClass, TTL: ttl, Data: data}, nil
}

// readCharacterString reads a one-octet-length-prefixed byte string
// (RFC 1035 Section 3.3's <character-string>), used by NAPTR's flags,
// service, and regexp fields.
func readCharacterString(msg []byte, off *int) (string, error) {
	if *off+1 > len(msg) {
		return "", fmt.Errorf("%w: unexpected EOF while reading character-string length", ErrDNSError)
	}
	n := int(msg[*off])
	*off++
	if *off+n > len(msg) {
		return "", fmt.Errorf("%w: unexpected EOF while reading character-string", ErrDNSError)
	}
	s := string(msg[*off : *off+n])
	*off += n
	return s, nil
}

// marshalCharacterString encodes s as a one-octet-length-prefixed byte string.
func marshalCharacterString(s string) ([]byte, error) {
	if len(s) > 255 {
		return nil, fmt.Errorf("%w: character-string cannot exceed 255 bytes", ErrDNSError)
	}
	out := make([]byte, 1+len(s))
	out[0] = byte(len(s))
	copy(out[1:], s)
	return out, nil
}

func (rr Record) Marshal() ([]byte, error) {
	nameWire := []byte{0}
	if rr.Type != uint16(TypeOPT) {
		b, err := EncodeName(rr.Name)
		if err != nil {
			return nil, err
		}
		nameWire = b
	}

	rdata, err := rr.marshalRData()
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, len(nameWire)+10+len(rdata))
	out = append(out, nameWire...)
	fixed := make([]byte, 10)
	binary.BigEndian.PutUint16(fixed[0:2], rr.Type)
	binary.BigEndian.PutUint16(fixed[2:4], rr.Class)
	binary.BigEndian.PutUint32(fixed[4:8], rr.TTL)
	binary.BigEndian.PutUint16(fixed[8:10], uint16(len(rdata)))
	out = append(out, fixed...)
	out = append(out, rdata...)
	return out, nil
}

func (rr Record) marshalRData() ([]byte, error) {
	switch RecordType(rr.Type) {
	case TypeA:
		b, ok := rr.Data.([]byte)
		if !ok || len(b) != 4 {
			return nil, fmt.Errorf("%w: A record data must be 4 bytes", ErrDNSError)
		}
		return b, nil
	case TypeAAAA:
		b, ok := rr.Data.([]byte)
		if !ok || len(b) != 16 {
			return nil, fmt.Errorf("%w: AAAA record data must be 16 bytes", ErrDNSError)
		}
		return b, nil
	case TypeSRV:
		srv, ok := rr.Data.(SRVData)
		if !ok {
			return nil, fmt.Errorf("%w: SRV record data must be SRVData", ErrDNSError)
		}
		target, err := EncodeName(srv.Target)
		if err != nil {
			return nil, err
		}
		out := make([]byte, 6, 6+len(target))
		binary.BigEndian.PutUint16(out[0:2], srv.Priority)
		binary.BigEndian.PutUint16(out[2:4], srv.Weight)
		binary.BigEndian.PutUint16(out[4:6], srv.Port)
		out = append(out, target...)
		return out, nil
	case TypeNAPTR:
		naptr, ok := rr.Data.(NAPTRData)
		if !ok {
			return nil, fmt.Errorf("%w: NAPTR record data must be NAPTRData", ErrDNSError)
		}
		flag := byte(naptr.Flag)
		if flag == 0 {
			flag = 'U' // NaptrFlagOther has no canonical letter; preserve a valid single octet on the wire.
		}
		flagsField, err := marshalCharacterString(string(flag))
		if err != nil {
			return nil, err
		}
		serviceField, err := marshalCharacterString(naptr.Service)
		if err != nil {
			return nil, err
		}
		regexpField, err := marshalCharacterString(naptr.Regexp)
		if err != nil {
			return nil, err
		}
		replacementName := naptr.Replacement
		if replacementName == "" {
			replacementName = "." // RFC 2915: empty replacement is the root domain.
		}
		replacement, err := EncodeName(replacementName)
		if err != nil {
			return nil, err
		}
		out := make([]byte, 4, 4+len(flagsField)+len(serviceField)+len(regexpField)+len(replacement))
		binary.BigEndian.PutUint16(out[0:2], naptr.Order)
		binary.BigEndian.PutUint16(out[2:4], naptr.Preference)
		out = append(out, flagsField...)
		out = append(out, serviceField...)
		out = append(out, regexpField...)
		out = append(out, replacement...)
		return out, nil
	case TypeMX:
		mx, ok := rr.Data.(MXData)
		if !ok {
			return nil, fmt.Errorf("%w: MX record data must be MXData", ErrDNSError)
		}
		ex, err := EncodeName(mx.Exchange)
		if err != nil {
			return nil, err
		}
		out := make([]byte, 2+len(ex))
		binary.BigEndian.PutUint16(out[0:2], mx.Preference)
		copy(out[2:], ex)
		return out, nil
	case TypeCNAME, TypeNS, TypePTR:
		s, ok := rr.Data.(string)
		if !ok || s == "" {
			return nil, fmt.Errorf("%w: name-based record data must be a non-empty string", ErrDNSError)
		}
		return EncodeName(s)
	case TypeTXT:
		return marshalTXT(rr.Data)
	case TypeOPT:
		if rr.Data == nil {
			return nil, nil
		}
		b, ok := rr.Data.([]byte)
		if ok {
			return b, nil
		}
		return nil, fmt.Errorf("%w: OPT record data must be raw bytes", ErrDNSError)
	default:
		if b, ok := rr.Data.([]byte); ok {
			return b, nil
		}
		return nil, fmt.Errorf("%w: unsupported RR type for serialization: %d", ErrDNSError, rr.Type)
	}
}

func marshalTXT(v any) ([]byte, error) {
	switch t := v.(type) {
	case string:
		return marshalTXTString(t), nil
	case []string:
		// Pre-calculate total size to avoid reallocations
		totalLen := 0
		for _, s := range t {
			totalLen += 1 + len(s) // length byte + string data
		}
		out := make([]byte, 0, totalLen)
		for _, s := range t {
			b := []byte(s)
			if len(b) > 255 {
				return nil, fmt.Errorf("%w: TXT character-string cannot exceed 255 bytes", ErrDNSError)
			}
			out = append(out, byte(len(b)))
			out = append(out, b...)
		}
		return out, nil
	case []byte:
		return t, nil
	default:
		return nil, fmt.Errorf("%w: TXT record data must be string, []string, or []byte", ErrDNSError)
	}
}

func marshalTXTString(s string) []byte {
	b := []byte(s)
	if len(b) <= 255 {
		out := make([]byte, 1+len(b))
		out[0] = byte(len(b))
		copy(out[1:], b)
		return out
	}
	// Long string: split into 255-byte chunks
	// Calculate total size: len(b) data bytes + (len(b)/255 + 1) length bytes
	numChunks := (len(b) + 254) / 255
	out := make([]byte, 0, len(b)+numChunks)
	for i := 0; i < len(b); i += 255 {
		chunk := b[i:]
		if len(chunk) > 255 {
			chunk = chunk[:255]
		}
		out = append(out, byte(len(chunk)))
		out = append(out, chunk...)
	}
	return out
}

func (rr Record) IPv4() (string, bool) {
	if RecordType(rr.Type) != TypeA {
		return "", false
	}
	b, ok := rr.Data.([]byte)
	if !ok || len(b) != 4 {
		return "", false
	}
	return net.IPv4(b[0], b[1], b[2], b[3]).String(), true
}

func (rr Record) SRV() (SRVData, bool) {
	if RecordType(rr.Type) != TypeSRV {
		return SRVData{}, false
	}
	srv, ok := rr.Data.(SRVData)
	return srv, ok
}

func (rr Record) NAPTR() (NAPTRData, bool) {
	if RecordType(rr.Type) != TypeNAPTR {
		return NAPTRData{}, false
	}
	naptr, ok := rr.Data.(NAPTRData)
	return naptr, ok
}

func (rr Record) IPv6() (string, bool) {
	if RecordType(rr.Type) != TypeAAAA {
		return "", false
	}
	b, ok := rr.Data.([]byte)
	if !ok || len(b) != 16 {
		return "", false
	}
	return net.IP(b).String(), true
}
