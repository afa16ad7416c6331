package formats

import (
	"errors"
	"fmt"
	"strings"
)

// ErrMalformedEntities is returned when the entity text cannot be tokenized.
var ErrMalformedEntities = errors.New("malformed entity text")

// EntityPair is one "key" "value" line of an entity block.
type EntityPair struct {
	Key   string
	Value string
}

// Entity is a single { ... } block of the entity lump, pairs in file order.
type Entity struct {
	Pairs []EntityPair
}

// Get returns the first value stored under key.
func (e Entity) Get(key string) (string, bool) {
	for _, p := range e.Pairs {
		if p.Key == key {
			return p.Value, true
		}
	}
	return "", false
}

// Classname returns the entity's "classname" value.
func (e Entity) Classname() string {
	v, _ := e.Get("classname")
	return v
}

// ParseEntities splits raw entity text into blocks.
// The raw BSP.Entities string stays authoritative; this is a read-only view.
func (b *BSP) ParseEntities() ([]Entity, error) {
	return ParseEntities(b.Entities)
}

// ParseEntities tokenizes entity text of the form
//
//	{ "key" "value" ... } { ... }
func ParseEntities(text string) ([]Entity, error) {
	var entities []Entity
	var current *Entity
	var pendingKey *string

	for pos := 0; pos < len(text); {
		c := text[pos]
		switch {
		case c == 0 || c == ' ' || c == '\t' || c == '\r' || c == '\n':
			pos++
		case c == '{':
			if current != nil {
				return nil, fmt.Errorf("%w: nested '{' at offset %d", ErrMalformedEntities, pos)
			}
			current = &Entity{}
			pos++
		case c == '}':
			if current == nil {
				return nil, fmt.Errorf("%w: unmatched '}' at offset %d", ErrMalformedEntities, pos)
			}
			if pendingKey != nil {
				return nil, fmt.Errorf("%w: key %q has no value", ErrMalformedEntities, *pendingKey)
			}
			entities = append(entities, *current)
			current = nil
			pos++
		case c == '"':
			if current == nil {
				return nil, fmt.Errorf("%w: string outside entity at offset %d", ErrMalformedEntities, pos)
			}
			end := strings.IndexByte(text[pos+1:], '"')
			if end < 0 {
				return nil, fmt.Errorf("%w: unterminated string at offset %d", ErrMalformedEntities, pos)
			}
			tok := text[pos+1 : pos+1+end]
			pos += end + 2
			if pendingKey == nil {
				pendingKey = &tok
			} else {
				current.Pairs = append(current.Pairs, EntityPair{Key: *pendingKey, Value: tok})
				pendingKey = nil
			}
		default:
			return nil, fmt.Errorf("%w: unexpected %q at offset %d", ErrMalformedEntities, c, pos)
		}
	}

	if current != nil {
		return nil, fmt.Errorf("%w: unterminated entity", ErrMalformedEntities)
	}
	return entities, nil
}
