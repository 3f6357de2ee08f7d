package loader

import (
	"bytes"
	"fmt"
	"io"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"go-workflow/internal/model"
)

// ParseDocuments parses one YAML (or JSON) file. It returns the top-level
// mapping, which maps document names to documents, with file order kept.
func ParseDocuments(data []byte) (*model.Map, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	var root yaml.Node
	if err := dec.Decode(&root); err != nil {
		if err == io.EOF {
			return model.NewMap(), nil
		}
		return nil, err
	}
	v, err := FromNode(&root)
	if err != nil {
		return nil, err
	}
	switch v.Kind() {
	case model.KindNull:
		return model.NewMap(), nil
	case model.KindMap:
		return v.Map(), nil
	}
	return nil, fmt.Errorf("top level must be a mapping of document names, got %s", v.Kind())
}

// FromNode converts a yaml.v3 node tree into a Value, keeping mapping order.
func FromNode(n *yaml.Node) (model.Value, error) {
	switch n.Kind {
	case yaml.DocumentNode:
		if len(n.Content) == 0 {
			return model.Null(), nil
		}
		return FromNode(n.Content[0])
	case yaml.AliasNode:
		return FromNode(n.Alias)
	case yaml.SequenceNode:
		items := make([]model.Value, len(n.Content))
		for i, c := range n.Content {
			v, err := FromNode(c)
			if err != nil {
				return model.Value{}, err
			}
			items[i] = v
		}
		return model.Seq(items...), nil
	case yaml.MappingNode:
		m := model.NewMap()
		for i := 0; i+1 < len(n.Content); i += 2 {
			k, v := n.Content[i], n.Content[i+1]
			if k.Tag == "!!merge" {
				merged, err := FromNode(v)
				if err != nil {
					return model.Value{}, err
				}
				merged.Map().Range(func(key string, val model.Value) bool {
					if !m.Has(key) {
						m.Set(key, val)
					}
					return true
				})
				continue
			}
			val, err := FromNode(v)
			if err != nil {
				return model.Value{}, err
			}
			m.Set(k.Value, val)
		}
		return model.MapValue(m), nil
	case yaml.ScalarNode:
		return scalar(n)
	}
	return model.Value{}, fmt.Errorf("line %d: unsupported YAML node", n.Line)
}

func scalar(n *yaml.Node) (model.Value, error) {
	switch n.ShortTag() {
	case "!!null":
		return model.Null(), nil
	case "!!bool":
		var b bool
		if err := n.Decode(&b); err != nil {
			return model.Value{}, err
		}
		return model.Bool(b), nil
	case "!!int":
		var i int64
		if err := n.Decode(&i); err != nil {
			return model.Value{}, err
		}
		return model.Int(i), nil
	case "!!float":
		f, err := strconv.ParseFloat(n.Value, 64)
		if err != nil {
			var d float64
			if err := n.Decode(&d); err != nil {
				return model.Value{}, err
			}
			f = d
		}
		return model.Float(f), nil
	case "!!timestamp":
		var t time.Time
		if err := n.Decode(&t); err != nil {
			return model.String(n.Value), nil
		}
		return model.Time(t), nil
	}
	return model.String(n.Value), nil
}
