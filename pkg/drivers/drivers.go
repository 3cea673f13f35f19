// Package drivers lists the backends built into ampctl.
package drivers

import (
	"ampctl/pkg/amp"
	"ampctl/pkg/drivers/dummy"
	"ampctl/pkg/drivers/elecraft"
	"ampctl/pkg/drivers/mqttbridge"
)

// Modules returns the registration entry points of every built-in backend.
func Modules() []amp.Module {
	return []amp.Module{
		{Name: "dummy", Family: dummy.Model.Family(), Register: dummy.Register},
		{Name: "elecraft", Family: elecraft.ModelKPA1500.Family(), Register: elecraft.Register},
		{Name: "mqttbridge", Family: mqttbridge.ModelBridge.Family(), Register: mqttbridge.Register},
	}
}

// Install makes the built-in backends loadable from r. Nothing is
// registered until a module is loaded.
func Install(r *amp.Registry) error {
	for _, mod := range Modules() {
		if err := r.AddModule(mod); err != nil {
			return err
		}
	}
	return nil
}
