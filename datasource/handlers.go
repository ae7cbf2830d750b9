package datasource

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/teranos/strata/dataset"
	"github.com/teranos/strata/errors"
	"github.com/teranos/strata/logger"
	"github.com/teranos/strata/record"
	"github.com/teranos/strata/value"
)

// Handler runs a named operation against a loaded record and returns its
// textual result.
type Handler func(ctx context.Context, ds *DataSource, rec *record.Record, args map[string]string) (string, error)

// Built-in handler names on dataset records.
const (
	HandlerDescribe   = "Describe"
	HandlerVisibility = "Visibility"
)

// RegisterHandler attaches fn to typeName under name. Records of derived
// types inherit the handler.
func (ds *DataSource) RegisterHandler(typeName, name string, fn Handler) error {
	if _, ok := ds.reg.Lookup(typeName); !ok {
		return errors.NewTypeMismatch("handler %s: type %s is not registered", name, typeName)
	}
	if name == "" || fn == nil {
		return errors.NewPrecondition("handler on %s needs a name and a function", typeName)
	}
	ds.mu.Lock()
	defer ds.mu.Unlock()
	if ds.handlers[typeName] == nil {
		ds.handlers[typeName] = make(map[string]Handler)
	}
	ds.handlers[typeName][name] = fn
	return nil
}

// Handlers returns the handler names available on typeName, including
// inherited ones.
func (ds *DataSource) Handlers(typeName string) []string {
	ti, ok := ds.reg.Lookup(typeName)
	if !ok {
		return nil
	}
	ds.mu.Lock()
	defer ds.mu.Unlock()
	seen := map[string]bool{}
	var names []string
	for _, t := range ti.Chain {
		for n := range ds.handlers[t] {
			if !seen[n] {
				seen[n] = true
				names = append(names, n)
			}
		}
	}
	sort.Strings(names)
	return names
}

// Run resolves dataSetPath, loads key as typeName there and invokes the
// handler found by walking the record's type chain.
func (ds *DataSource) Run(ctx context.Context, typeName, key, dataSetPath, handler string, args map[string]string) (string, error) {
	leaf, err := ds.ResolveDataSet(ctx, dataSetPath)
	if err != nil {
		return "", err
	}
	rec, found, err := ds.Load(ctx, typeName, key, leaf)
	if err != nil {
		return "", err
	}
	if !found {
		return "", errors.NewNotFound("%s %q not found in dataset %s", typeName, key, dataSetPath)
	}

	fn := ds.lookupHandler(rec.Type, handler)
	if fn == nil {
		return "", errors.WithHintf(
			errors.NewPrecondition("type %s has no handler %s", rec.TypeName(), handler),
			"available handlers: %s", strings.Join(ds.Handlers(rec.TypeName()), ", "))
	}
	ds.log.Infow("Running handler",
		logger.FieldHandler, handler,
		logger.FieldType, rec.TypeName(),
		logger.FieldKey, key,
		logger.FieldDataSet, leaf)
	out, err := fn(ctx, ds, rec, args)
	if err != nil {
		return "", errors.Wrapf(err, "handler %s on %s %q", handler, rec.TypeName(), key)
	}
	return out, nil
}

func (ds *DataSource) lookupHandler(chain []string, name string) Handler {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	for _, t := range chain {
		if fn, ok := ds.handlers[t][name]; ok {
			return fn
		}
	}
	return nil
}

func (ds *DataSource) registerBuiltinHandlers() {
	ds.handlers[dataset.TypeName] = map[string]Handler{
		HandlerDescribe:   describeHandler,
		HandlerVisibility: visibilityHandler,
	}
	ds.handlers[ServerTypeName] = map[string]Handler{
		HandlerDescribe: describeHandler,
		"URI": func(_ context.Context, _ *DataSource, rec *record.Record, _ map[string]string) (string, error) {
			return rec.Data.(*MongoServer).URI(), nil
		},
	}
}

func describeHandler(_ context.Context, ds *DataSource, rec *record.Record, _ map[string]string) (string, error) {
	return Describe(ds.reg, rec)
}

// visibilityHandler lists, in override order, the datasets visible from the
// dataset a dataset record defines.
func visibilityHandler(ctx context.Context, ds *DataSource, rec *record.Record, _ map[string]string) (string, error) {
	vis, err := ds.Visibility(ctx, rec.ID)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	for i, id := range vis.Order {
		name, err := ds.DataSetName(ctx, id)
		if err != nil {
			return "", err
		}
		if name == "" {
			name = "(root)"
		}
		fmt.Fprintf(&b, "%d\t%s\t%s\n", i, id, name)
	}
	return b.String(), nil
}

// Describe renders rec as YAML: envelope fields first, then the payload in
// declaration order.
func Describe(reg *record.Registry, rec *record.Record) (string, error) {
	doc, err := reg.Encode(rec)
	if err != nil {
		return "", err
	}
	out, err := yaml.Marshal(documentNode(doc))
	if err != nil {
		return "", errors.Wrap(err, "render yaml")
	}
	return string(out), nil
}

func documentNode(doc *value.Document) *yaml.Node {
	n := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	for _, f := range doc.Fields() {
		n.Content = append(n.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: f.Name},
			valueNode(f.Value))
	}
	return n
}

func valueNode(v value.Value) *yaml.Node {
	scalar := func(tag, s string) *yaml.Node {
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: tag, Value: s}
	}
	switch v.Kind() {
	case value.KindString:
		return scalar("!!str", v.Str())
	case value.KindInt32, value.KindInt64:
		return scalar("!!int", strconv.FormatInt(v.Int(), 10))
	case value.KindDouble:
		f := v.Float()
		switch {
		case math.IsNaN(f):
			return scalar("!!float", ".nan")
		case math.IsInf(f, 1):
			return scalar("!!float", ".inf")
		case math.IsInf(f, -1):
			return scalar("!!float", "-.inf")
		}
		return scalar("!!float", strconv.FormatFloat(f, 'g', -1, 64))
	case value.KindBool:
		return scalar("!!bool", strconv.FormatBool(v.Boolean()))
	case value.KindTID:
		return scalar("!!str", v.ID().String())
	case value.KindList:
		n := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq", Style: yaml.FlowStyle}
		for _, item := range v.Items() {
			n.Content = append(n.Content, valueNode(item))
		}
		return n
	case value.KindDocument:
		return documentNode(v.Document())
	}
	return scalar("!!null", "null")
}
