package packet

import "github.com/samber/oops"

// FieldValue is one field of an encoded record.
type FieldValue struct {
	Field
	Raw []byte
}

// Dissection is the field-by-field view of an encoded record.
type Dissection struct {
	Kind   Kind
	Header Header
	Fields []FieldValue
	// CRCValid is nil for kinds without a checksum.
	CRCValid *bool
}

// Dissect identifies and validates buf, then splits it along its field
// table. Raw slices alias buf.
func (c *Codec) Dissect(buf []byte) (*Dissection, error) {
	k, err := c.Identify(buf)
	if err != nil {
		return nil, err
	}
	rec, err := c.DecodeAndValidate(buf, k)
	if err != nil {
		return nil, oops.Wrapf(err, "dissect %s", k)
	}
	d := &Dissection{Kind: k, Header: *rec.RecordHeader()}
	for _, f := range c.Fields(k) {
		d.Fields = append(d.Fields, FieldValue{Field: f, Raw: buf[f.Offset : f.Offset+f.Size]})
	}
	if _, ok := c.CRCOffset(k); ok {
		valid := c.VerifyCRC(buf, k) == nil
		d.CRCValid = &valid
	}
	return d, nil
}
