package entity

import (
	"database/sql/driver"

	json "github.com/goccy/go-json"
)

type ConditionStatus string

const (
	ConditionNotChecked = ConditionStatus("")
	ConditionNormal     = ConditionStatus("normal")
	ConditionDamaged    = ConditionStatus("damaged")
	ConditionMissing    = ConditionStatus("missing")
)

// ConditionItem is one checklist line.
type ConditionItem struct {
	Status ConditionStatus `json:"status" validate:"omitempty,oneof=normal damaged missing"`
	Reason string          `json:"reason,omitempty" validate:"max=500"`
}

// DeviceCondition is the intake checklist snapshot. The set of items is
// fixed.
type DeviceCondition struct {
	Exterior     ConditionItem `json:"exterior"`
	Screen       ConditionItem `json:"screen"`
	Assembly     ConditionItem `json:"assembly"`
	Buttons      ConditionItem `json:"buttons"`
	Camera       ConditionItem `json:"camera"`
	Audio        ConditionItem `json:"audio"`
	Charging     ConditionItem `json:"charging"`
	Connectivity ConditionItem `json:"connectivity"`
}

// Damaged lists the names of items not in normal condition.
func (d DeviceCondition) Damaged() []string {
	items := []struct {
		name string
		item ConditionItem
	}{
		{"exterior", d.Exterior},
		{"screen", d.Screen},
		{"assembly", d.Assembly},
		{"buttons", d.Buttons},
		{"camera", d.Camera},
		{"audio", d.Audio},
		{"charging", d.Charging},
		{"connectivity", d.Connectivity},
	}
	var out []string
	for _, it := range items {
		if it.item.Status == ConditionDamaged || it.item.Status == ConditionMissing {
			out = append(out, it.name)
		}
	}
	return out
}

func (d DeviceCondition) Value() (driver.Value, error) {
	return json.Marshal(d)
}

func (d *DeviceCondition) Scan(src any) error { return scanJSON(src, d) }
