package datasource

import (
	"strings"

	"github.com/teranos/strata/errors"
)

// InstanceType classifies a deployment. Only test instances may be dropped.
type InstanceType string

const (
	Prod InstanceType = "prod"
	UAT  InstanceType = "uat"
	Dev  InstanceType = "dev"
	User InstanceType = "user"
	Test InstanceType = "test"
)

// InstanceTypes lists the valid instance types.
var InstanceTypes = []InstanceType{Prod, UAT, Dev, User, Test}

// ParseInstanceType validates s.
func ParseInstanceType(s string) (InstanceType, error) {
	for _, t := range InstanceTypes {
		if string(t) == strings.ToLower(s) {
			return t, nil
		}
	}
	return "", errors.WithHintf(
		errors.NewPrecondition("unknown instance type %q", s),
		"use one of prod, uat, dev, user, test")
}

// Instance names the database a data source works on.
//
// Name is the endpoint, user alias or test fixture; Env is the user
// environment or test name.
type Instance struct {
	Type InstanceType `mapstructure:"type" toml:"type" yaml:"type"`
	Name string       `mapstructure:"name" toml:"name" yaml:"name"`
	Env  string       `mapstructure:"env" toml:"env" yaml:"env"`
}

// ParseInstance splits "type;name;env".
func ParseInstance(s string) (Instance, error) {
	parts := strings.Split(s, ";")
	if len(parts) != 3 {
		return Instance{}, errors.WithHint(
			errors.NewPrecondition("environment %q must have three parts", s),
			"use the form type;name;env, e.g. test;fixture;scratch")
	}
	t, err := ParseInstanceType(parts[0])
	if err != nil {
		return Instance{}, err
	}
	inst := Instance{Type: t, Name: parts[1], Env: parts[2]}
	return inst, inst.Validate("")
}

// Validate checks that every part is present and free of sep.
func (i Instance) Validate(sep string) error {
	if _, err := ParseInstanceType(string(i.Type)); err != nil {
		return err
	}
	for _, p := range []struct{ label, v string }{{"name", i.Name}, {"env", i.Env}} {
		if p.v == "" {
			return errors.NewPrecondition("instance %s is empty", p.label)
		}
		if sep != "" && strings.Contains(p.v, sep) {
			return errors.NewPrecondition("instance %s %q contains the separator %q", p.label, p.v, sep)
		}
	}
	return nil
}

// DBName joins type, name and env with the driver's separator.
func (i Instance) DBName(sep string) (string, error) {
	if err := i.Validate(sep); err != nil {
		return "", err
	}
	return string(i.Type) + sep + i.Name + sep + i.Env, nil
}

// IsTest reports whether destructive operations are allowed.
func (i Instance) IsTest() bool { return i.Type == Test }

func (i Instance) String() string {
	return string(i.Type) + ";" + i.Name + ";" + i.Env
}
