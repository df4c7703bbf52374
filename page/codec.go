package page

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/c360/semblocks/errors"
)

// Marshal encodes a page. Configuration maps are written with sorted keys.
func Marshal(p *Page) ([]byte, error) {
	if p == nil {
		return nil, errors.WrapInvalid(errors.ErrInvalidData, "page", "Marshal", "nil page")
	}
	data, err := json.Marshal(p)
	if err != nil {
		return nil, errors.WrapFatal(err, "page", "Marshal", "encode page")
	}
	return data, nil
}

// Unmarshal decodes and validates a page. Numbers in configuration are kept
// as json.Number so they re-encode exactly as read. A missing or null config
// loads as an empty one.
func Unmarshal(data []byte) (*Page, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var p Page
	if err := dec.Decode(&p); err != nil {
		return nil, errors.WrapFatal(fmt.Errorf("%w: %v", errors.ErrDataCorrupted, err), "page", "Unmarshal", "decode page")
	}
	if err := p.Validate(); err != nil {
		return nil, errors.WrapFatal(err, "page", "Unmarshal", "loaded page validation")
	}
	for i := range p.Blocks {
		if p.Blocks[i].Config == nil {
			p.Blocks[i].Config = map[string]any{}
		}
	}
	return &p, nil
}
