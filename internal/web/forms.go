package web

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

var (
	// ErrUnknownAction is returned for a POST whose action field names no operation on that page.
	ErrUnknownAction = errors.New("unknown action")

	// ErrMalformedForm is returned when the request body cannot be parsed as a form.
	ErrMalformedForm = errors.New("malformed form")
)

// MissingFieldError lists required form fields that were absent or blank.
type MissingFieldError struct {
	Fields []string
}

func (e *MissingFieldError) Error() string {
	return "missing required field(s): " + strings.Join(e.Fields, ", ")
}

// InvalidFieldError reports an id field that is not a positive integer.
type InvalidFieldError struct {
	Field string
	Value string
}

func (e *InvalidFieldError) Error() string {
	return fmt.Sprintf("field %s: %q is not a valid id", e.Field, e.Value)
}

// isBadRequest reports whether err was caused by the submitted form rather
// than by the store.
func isBadRequest(err error) bool {
	var mf *MissingFieldError
	var inv *InvalidFieldError
	return errors.Is(err, ErrUnknownAction) ||
		errors.Is(err, ErrMalformedForm) ||
		errors.As(err, &mf) ||
		errors.As(err, &inv)
}

// AddBusRequest carries the fields of action=add.
type AddBusRequest struct {
	BusNumber string
	Driver    string
	Status    string
	Notes     string
}

// UpdateBusRequest carries the fields of action=update.
type UpdateBusRequest struct {
	ID     int64
	Driver string
	Status string
	Notes  string
}

// DeleteBusRequest carries the fields of action=delete.
type DeleteBusRequest struct {
	ID int64
}

// AddRunRequest carries the fields of action=add_run.
type AddRunRequest struct {
	RunDate     string
	RunTime     string
	GroupName   string
	Destination string
	Driver      string
	BusNumber   string
}

// DeleteRunRequest carries the fields of action=delete_run.
type DeleteRunRequest struct {
	ID int64
}

// formReader collects every missing field so one response can name them all.
type formReader struct {
	values  url.Values
	missing []string
	invalid *InvalidFieldError
}

func (f *formReader) required(name string) string {
	v := strings.TrimSpace(f.values.Get(name))
	if v == "" {
		f.missing = append(f.missing, name)
	}
	return v
}

func (f *formReader) optional(name string) string {
	return strings.TrimSpace(f.values.Get(name))
}

func (f *formReader) id(name string) int64 {
	v := f.required(name)
	if v == "" {
		return 0
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n < 1 {
		if f.invalid == nil {
			f.invalid = &InvalidFieldError{Field: name, Value: v}
		}
		return 0
	}
	return n
}

func (f *formReader) err() error {
	if len(f.missing) > 0 {
		return &MissingFieldError{Fields: f.missing}
	}
	if f.invalid != nil {
		return f.invalid
	}
	return nil
}

func decodeAddBus(v url.Values) (AddBusRequest, error) {
	f := &formReader{values: v}
	req := AddBusRequest{
		BusNumber: f.required("bus_number"),
		Driver:    f.required("driver"),
		Status:    f.required("status"),
		Notes:     f.optional("notes"),
	}
	return req, f.err()
}

func decodeUpdateBus(v url.Values) (UpdateBusRequest, error) {
	f := &formReader{values: v}
	req := UpdateBusRequest{
		ID:     f.id("bus_id"),
		Driver: f.required("driver"),
		Status: f.required("status"),
		Notes:  f.optional("notes"),
	}
	return req, f.err()
}

func decodeDeleteBus(v url.Values) (DeleteBusRequest, error) {
	f := &formReader{values: v}
	req := DeleteBusRequest{ID: f.id("bus_id")}
	return req, f.err()
}

func decodeAddRun(v url.Values) (AddRunRequest, error) {
	f := &formReader{values: v}
	req := AddRunRequest{
		RunDate:     f.required("run_date"),
		RunTime:     f.required("run_time"),
		GroupName:   f.required("group_name"),
		Destination: f.required("destination"),
		Driver:      f.required("driver"),
		BusNumber:   f.required("bus_number"),
	}
	return req, f.err()
}

func decodeDeleteRun(v url.Values) (DeleteRunRequest, error) {
	f := &formReader{values: v}
	req := DeleteRunRequest{ID: f.id("run_id")}
	return req, f.err()
}
