package model

import "strings"

// Credentials is the resolved connection snapshot the core works with. It is
// built once from a Camera row (or a connect request) and passed by value.
type Credentials struct {
	CameraID          int
	IP                string
	Port              int
	Username          string
	Password          string
	TemperatureEntity string
	HumidityEntity    string
}

// CredentialsFromCamera snapshots the connection fields of a camera row.
func CredentialsFromCamera(c *Camera) Credentials {
	return Credentials{
		CameraID:          c.ID,
		IP:                strings.TrimSpace(c.IP),
		Port:              c.Port,
		Username:          c.Username,
		Password:          c.Password,
		TemperatureEntity: strings.TrimSpace(c.TemperatureEntity),
		HumidityEntity:    strings.TrimSpace(c.HumidityEntity),
	}
}

// HasAuth reports whether address and login are present.
func (c Credentials) HasAuth() bool {
	return c.IP != "" && c.Username != "" && c.Password != ""
}
