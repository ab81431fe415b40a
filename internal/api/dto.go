package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"

	"roadassist/internal/domain"
	"roadassist/internal/models"
)

const maxBodyBytes = 1 << 20

// flexFloat accepts a JSON number, a numeric string, null, or "".
// The last two leave it unset.
type flexFloat struct {
	Value float64
	Set   bool
}

func (f *flexFloat) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		*f = flexFloat{}
		return nil
	}

	raw := string(data)
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		raw = strings.TrimSpace(s)
		if raw == "" {
			*f = flexFloat{}
			return nil
		}
	}

	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return fmt.Errorf("not a number: %s", raw)
	}
	*f = flexFloat{Value: v, Set: true}
	return nil
}

func (f flexFloat) Ptr() *float64 {
	if !f.Set {
		return nil
	}
	v := f.Value
	return &v
}

// flexString accepts a JSON string, number, or null. Blank strings leave it unset.
type flexString struct {
	Value string
	Set   bool
}

func (f *flexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		*f = flexString{}
		return nil
	}
	var s string
	switch c := data[0]; {
	case c == '"':
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
	case c == '-' || (c >= '0' && c <= '9'):
		var n json.Number
		if err := json.Unmarshal(data, &n); err != nil {
			return err
		}
		s = n.String()
	default:
		return fmt.Errorf("expected a string or number, got %s", data)
	}
	s = strings.TrimSpace(s)
	*f = flexString{Value: s, Set: s != ""}
	return nil
}

func (f flexString) Ptr() *string {
	if !f.Set {
		return nil
	}
	v := f.Value
	return &v
}

type createRequestBody struct {
	ServiceType   string     `json:"service_type"`
	VehicleType   string     `json:"vehicle_type"`
	VehicleMake   flexString `json:"vehicle_make"`
	VehicleModel  flexString `json:"vehicle_model"`
	VehicleNumber flexString `json:"vehicle_number"`
	Description   string     `json:"description"`
	CustomerNotes flexString `json:"customer_notes"`
	Latitude      flexFloat  `json:"latitude"`
	Longitude     flexFloat  `json:"longitude"`
	Address       string     `json:"address"`
	Images        []string   `json:"images"`
}

func (b createRequestBody) toModel() models.NewServiceRequest {
	return models.NewServiceRequest{
		ServiceType:   b.ServiceType,
		VehicleType:   b.VehicleType,
		VehicleMake:   b.VehicleMake.Value,
		VehicleModel:  b.VehicleModel.Value,
		VehicleNumber: b.VehicleNumber.Value,
		Description:   b.Description,
		CustomerNotes: b.CustomerNotes.Value,
		Latitude:      b.Latitude.Ptr(),
		Longitude:     b.Longitude.Ptr(),
		Address:       b.Address,
		Images:        b.Images,
	}
}

type statusBody struct {
	Status string     `json:"status"`
	Notes  flexString `json:"notes"`
	Cost   flexFloat  `json:"cost"`
}

type reasonBody struct {
	Reason flexString `json:"reason"`
}

type locationBody struct {
	Latitude  flexFloat `json:"latitude"`
	Longitude flexFloat `json:"longitude"`
	Address   string    `json:"address"`
}

// decodeJSON reads an optional JSON body into dst. An empty body is allowed.
func decodeJSON(r *http.Request, dst any) error {
	decoder := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := decoder.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return domain.Validation("invalid JSON body: %v", err)
	}
	return nil
}

// pageParams reads page and page_size; absent values become 0 and are
// defaulted by the service.
func pageParams(r *http.Request) (int, int, error) {
	page, err := intParam(r, "page")
	if err != nil {
		return 0, 0, err
	}
	size, err := intParam(r, "page_size")
	if err != nil {
		return 0, 0, err
	}
	return page, size, nil
}

func intParam(r *http.Request, name string) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, domain.Validation("%s must be a non-negative integer", name)
	}
	return v, nil
}

func floatParam(r *http.Request, name string) (*float64, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, domain.Validation("%s must be a number", name)
	}
	return &v, nil
}
