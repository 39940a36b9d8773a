package models

import "time"

// Equipment 设备
type Equipment struct {
	ID              uint        `gorm:"primaryKey" json:"id"`
	WorkID          uint        `gorm:"not null;uniqueIndex:uq_work_equipment_number" json:"work_id"`
	EquipmentNumber string      `gorm:"type:varchar(50);not null;uniqueIndex:uq_work_equipment_number" json:"equipment_number"`
	PMTNumber       string      `gorm:"type:varchar(50)" json:"pmt_number"`
	Description     string      `gorm:"type:text" json:"description"`
	ExtractedDate   *time.Time  `json:"extracted_date,omitempty"`
	Components      []Component `gorm:"foreignKey:EquipmentID" json:"components,omitempty"`
	CreatedAt       time.Time   `json:"created_at"`
	UpdatedAt       time.Time   `json:"updated_at"`
}

// TableName 指定表名
func (Equipment) TableName() string {
	return "equipments"
}

// Component 设备部件及其设计/操作参数
type Component struct {
	ID                uint      `gorm:"primaryKey" json:"id"`
	EquipmentID       uint      `gorm:"not null;index" json:"equipment_id"`
	ComponentName     string    `gorm:"type:varchar(100);not null" json:"component_name"`
	Phase             string    `gorm:"type:varchar(50)" json:"phase"`
	Fluid             string    `gorm:"type:varchar(100)" json:"fluid"`
	MaterialSpec      string    `gorm:"type:varchar(100)" json:"material_spec"`
	MaterialGrade     string    `gorm:"type:varchar(100)" json:"material_grade"`
	Insulation        string    `gorm:"type:varchar(50)" json:"insulation"`
	DesignTemp        string    `gorm:"type:varchar(50)" json:"design_temp"`
	DesignPressure    string    `gorm:"type:varchar(50)" json:"design_pressure"`
	OperatingTemp     string    `gorm:"type:varchar(50)" json:"operating_temp"`
	OperatingPressure string    `gorm:"type:varchar(50)" json:"operating_pressure"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// TableName 指定表名
func (Component) TableName() string {
	return "components"
}
