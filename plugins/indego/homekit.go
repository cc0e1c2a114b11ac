package indego

import (
	"net/http"

	"github.com/brutella/hap/accessory"
	"github.com/brutella/hap/characteristic"
	"github.com/brutella/hap/service"
)

const (
	manufacturer     = "Bosch"
	hapStatusSuccess = 0
)

// HomeKit is the brutella/hap rendition of a mower: information, motion sensor
// ("Mowing") and switch ("Mow/Dock").
type HomeKit struct {
	A      *accessory.A
	Motion *service.MotionSensor
	Switch *service.Switch
}

func NewHomeKit(name, model, serial string) *HomeKit {
	a := accessory.New(accessory.Info{
		Name:         name,
		SerialNumber: serial,
		Manufacturer: manufacturer,
		Model:        model,
	}, accessory.TypeSwitch)

	motion := service.NewMotionSensor()
	addName(motion.S, "Mowing")
	a.AddS(motion.S)

	sw := service.NewSwitch()
	addName(sw.S, "Mow/Dock")
	a.AddS(sw.S)

	return &HomeKit{A: a, Motion: motion, Switch: sw}
}

func addName(s *service.S, value string) {
	name := characteristic.NewName()
	name.SetValue(value)
	s.AddC(name.C)
}

func (h *HomeKit) SetMowing(mowing bool) {
	h.Motion.MotionDetected.SetValue(mowing)
	h.Switch.On.SetValue(mowing)
}

func (h *HomeKit) SetSerial(serial string) {
	h.A.Info.SerialNumber.SetValue(serial)
}

// Bind routes HomeKit reads and writes to the accessory handlers.
func (h *HomeKit) Bind(a *Accessory) {
	get := func(*http.Request) (interface{}, int) {
		return a.HandleGet(), hapStatusSuccess
	}
	h.Motion.MotionDetected.ValueRequestFunc = get
	h.Switch.On.ValueRequestFunc = get
	h.Switch.On.OnValueRemoteUpdate(func(on bool) {
		a.HandleSet(on)
	})
}
