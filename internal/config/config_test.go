package config

import "testing"

func TestValidateCatchesMutuallyExclusiveOutputModes(t *testing.T) {
	o := Default()
	o.Shared = true
	o.PIE = true
	errs := o.Validate()
	if len(errs) == 0 {
		t.Fatal("expected a UserError for -shared + -pie")
	}
}

func TestValidateAcceptsOrdinaryOptions(t *testing.T) {
	o := Default()
	o.PIE = true
	o.GCSections = true
	if errs := o.Validate(); len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
}

func TestDefaultEnablesRelroAndSysVHash(t *testing.T) {
	o := Default()
	if !o.ZRelro {
		t.Fatal("relro should default on")
	}
	if o.HashStyle != HashSysV {
		t.Fatal("hash style should default to sysv")
	}
}
