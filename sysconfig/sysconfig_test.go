package sysconfig_test

import (
	"context"
	"sqlreview/sysconfig"
	"sqlreview/testinfra"
	"testing"

	. "github.com/onsi/gomega"
)

func TestDBProvider(t *testing.T) {
	RegisterTestingT(t)

	testDatabase := testinfra.StartTestDatabase("sqlreview")
	defer testinfra.StopTestDatabase(testDatabase)
	Expect(testDatabase.DS.GormDB(context.Background()).AutoMigrate(&sysconfig.ConfigItem{}).Error).To(BeNil())

	t.Run("should return empty value for absent item", func(t *testing.T) {
		p := sysconfig.NewDBProvider()
		Expect(p.Get(sysconfig.KeyNotifyPhaseControl)).To(BeEmpty())
	})

	t.Run("should read stored item and refresh it after set", func(t *testing.T) {
		p := sysconfig.NewDBProvider()
		Expect(p.Set(sysconfig.KeyNotifyPhaseControl, "Pass,Execute")).To(BeNil())
		Expect(p.Get(sysconfig.KeyNotifyPhaseControl)).To(Equal("Pass,Execute"))

		Expect(p.Set(sysconfig.KeyNotifyPhaseControl, "Cancel")).To(BeNil())
		Expect(p.Get(sysconfig.KeyNotifyPhaseControl)).To(Equal("Cancel"))
	})
}

func TestStaticProvider(t *testing.T) {
	RegisterTestingT(t)

	p := sysconfig.StaticProvider{sysconfig.KeyNotifyPhaseControl: "Pass"}
	Expect(p.Get(sysconfig.KeyNotifyPhaseControl)).To(Equal("Pass"))
	Expect(p.Get("unknown")).To(BeEmpty())
}
