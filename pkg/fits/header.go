package fits

import (
	"bytes"
	"fmt"
	"io"
	"strconv"
	"strings"
)

const (
	// CardSize is the length of a header card.
	CardSize = 80
	// BlockSize is the length of a FITS block. Headers and data are padded to it.
	BlockSize = 2880
)

// Card is one header record. Value holds the value as written, with strings unquoted.
type Card struct {
	Key     string
	Value   string
	Comment string
	quoted  bool
}

// Bool returns a logical card.
func Bool(key string, v bool, comment string) Card {
	s := "F"
	if v {
		s = "T"
	}
	return Card{Key: key, Value: s, Comment: comment}
}

// Int returns an integer card.
func Int(key string, v int64, comment string) Card {
	return Card{Key: key, Value: strconv.FormatInt(v, 10), Comment: comment}
}

// String returns a character string card.
func String(key, v, comment string) Card {
	return Card{Key: key, Value: v, Comment: comment, quoted: true}
}

// Format renders the card as 80 bytes.
func (c Card) Format() []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "%-8s", c.Key)
	if c.Key != "END" {
		b.WriteString("= ")
		if c.quoted {
			v := "'" + strings.ReplaceAll(c.Value, "'", "''")
			if len(c.Value) < 8 {
				v += strings.Repeat(" ", 8-len(c.Value))
			}
			fmt.Fprintf(&b, "%-20s", v+"'")
		} else {
			fmt.Fprintf(&b, "%20s", c.Value)
		}
		if c.Comment != "" {
			b.WriteString(" / ")
			b.WriteString(c.Comment)
		}
	}
	out := []byte(b.String())
	if len(out) > CardSize {
		out = out[:CardSize]
	}
	for len(out) < CardSize {
		out = append(out, ' ')
	}
	return out
}

// ParseCard reads an 80 byte card.
func ParseCard(b []byte) (Card, error) {
	if len(b) != CardSize {
		return Card{}, fmt.Errorf("card is %d bytes", len(b))
	}
	c := Card{Key: strings.TrimRight(string(b[:8]), " ")}
	if string(b[8:10]) != "= " {
		c.Comment = strings.TrimRight(string(b[8:]), " ")
		return c, nil
	}

	rest := string(b[10:])
	trimmed := strings.TrimLeft(rest, " ")
	if strings.HasPrefix(trimmed, "'") {
		var v strings.Builder
		i := 1
		for ; i < len(trimmed); i++ {
			if trimmed[i] == '\'' {
				if i+1 < len(trimmed) && trimmed[i+1] == '\'' {
					v.WriteByte('\'')
					i++
					continue
				}
				break
			}
			v.WriteByte(trimmed[i])
		}
		if i >= len(trimmed) {
			return Card{}, fmt.Errorf("card %s: unterminated string", c.Key)
		}
		c.Value = strings.TrimRight(v.String(), " ")
		c.quoted = true
		rest = trimmed[i+1:]
	} else {
		if j := strings.IndexByte(rest, '/'); j >= 0 {
			c.Value = strings.TrimSpace(rest[:j])
			rest = rest[j:]
		} else {
			c.Value = strings.TrimSpace(rest)
			rest = ""
		}
	}
	if j := strings.IndexByte(rest, '/'); j >= 0 {
		c.Comment = strings.TrimSpace(rest[j+1:])
	}
	return c, nil
}

// Header is the list of cards of an HDU, without END.
type Header []Card

// Get returns the first card with the key.
func (h Header) Get(key string) (Card, bool) {
	for _, c := range h {
		if c.Key == key {
			return c, true
		}
	}
	return Card{}, false
}

// Str returns a string value.
func (h Header) Str(key string) (string, bool) {
	c, ok := h.Get(key)
	return c.Value, ok
}

// Int returns an integer value.
func (h Header) Int(key string) (int64, bool) {
	c, ok := h.Get(key)
	if !ok {
		return 0, false
	}
	n, err := strconv.ParseInt(c.Value, 10, 64)
	return n, err == nil
}

// Bool returns a logical value.
func (h Header) Bool(key string) (bool, bool) {
	c, ok := h.Get(key)
	if !ok || (c.Value != "T" && c.Value != "F") {
		return false, false
	}
	return c.Value == "T", true
}

// WriteTo writes the cards, END and the padding to the next block boundary.
func (h Header) WriteTo(w io.Writer) (int64, error) {
	var buf bytes.Buffer
	for _, c := range h {
		buf.Write(c.Format())
	}
	buf.Write(Card{Key: "END"}.Format())
	buf.Write(bytes.Repeat([]byte{' '}, padding(int64(buf.Len()))))
	return buf.WriteTo(w)
}

// ReadHeader reads header blocks up to and including the one holding END.
func ReadHeader(r io.Reader) (Header, error) {
	var h Header
	block := make([]byte, BlockSize)
	for {
		if _, err := io.ReadFull(r, block); err != nil {
			if err == io.ErrUnexpectedEOF || (err == io.EOF && len(h) > 0) {
				return nil, fmt.Errorf("truncated FITS header: %w", io.ErrUnexpectedEOF)
			}
			return nil, err
		}
		for i := 0; i < BlockSize; i += CardSize {
			c, err := ParseCard(block[i : i+CardSize])
			if err != nil {
				return nil, err
			}
			if c.Key == "END" {
				return h, nil
			}
			h = append(h, c)
		}
	}
}

// padding returns the bytes needed to reach a block boundary after n bytes.
func padding(n int64) int {
	if r := n % BlockSize; r != 0 {
		return int(BlockSize - r)
	}
	return 0
}

// skipData discards an HDU's data and its padding.
func skipData(r io.Reader, size int64) error {
	size += int64(padding(size))
	n, err := io.CopyN(io.Discard, r, size)
	if err == io.EOF && n == size {
		return nil
	}
	return err
}

// dataSize returns the data length described by a header.
func dataSize(h Header) int64 {
	naxis, _ := h.Int("NAXIS")
	if naxis == 0 {
		return 0
	}
	size := int64(1)
	for i := 1; i <= int(naxis); i++ {
		n, _ := h.Int("NAXIS" + strconv.Itoa(i))
		size *= n
	}
	bitpix, _ := h.Int("BITPIX")
	if bitpix < 0 {
		bitpix = -bitpix
	}
	pcount, _ := h.Int("PCOUNT")
	gcount, ok := h.Int("GCOUNT")
	if !ok {
		gcount = 1
	}
	return bitpix / 8 * gcount * (pcount + size)
}
