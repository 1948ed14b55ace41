package web

import (
	"context"
	"fmt"
	"net/url"

	"github.com/maloquacious/busboard/internal/store"
)

// action decodes its typed request from the form and performs one store write.
type action func(ctx context.Context, rec store.Records, form url.Values) error

var busActions = map[string]action{
	"add":    addBus,
	"update": updateBus,
	"delete": deleteBus,
}

var runActions = map[string]action{
	"add_run":    addRun,
	"delete_run": deleteRun,
}

// adminActions is everything the combined management page accepts.
var adminActions = merge(busActions, runActions)

func merge(sets ...map[string]action) map[string]action {
	out := make(map[string]action)
	for _, set := range sets {
		for name, a := range set {
			out[name] = a
		}
	}
	return out
}

// dispatch runs the action named by the form's action field. Unknown or
// missing names fail with ErrUnknownAction and touch nothing.
func dispatch(ctx context.Context, rec store.Records, form url.Values, actions map[string]action) (string, error) {
	name := form.Get("action")
	a, ok := actions[name]
	if !ok {
		return name, fmt.Errorf("%w: %q", ErrUnknownAction, name)
	}
	return name, a(ctx, rec, form)
}

func addBus(ctx context.Context, rec store.Records, form url.Values) error {
	req, err := decodeAddBus(form)
	if err != nil {
		return err
	}
	_, err = rec.AddBus(ctx, store.Bus{
		BusNumber: req.BusNumber,
		Driver:    req.Driver,
		Status:    req.Status,
		Notes:     req.Notes,
	})
	return err
}

func updateBus(ctx context.Context, rec store.Records, form url.Values) error {
	req, err := decodeUpdateBus(form)
	if err != nil {
		return err
	}
	return rec.UpdateBus(ctx, req.ID, req.Driver, req.Status, req.Notes)
}

func deleteBus(ctx context.Context, rec store.Records, form url.Values) error {
	req, err := decodeDeleteBus(form)
	if err != nil {
		return err
	}
	return rec.DeleteBus(ctx, req.ID)
}

func addRun(ctx context.Context, rec store.Records, form url.Values) error {
	req, err := decodeAddRun(form)
	if err != nil {
		return err
	}
	_, err = rec.AddRun(ctx, store.Run{
		RunDate:     req.RunDate,
		RunTime:     req.RunTime,
		GroupName:   req.GroupName,
		Destination: req.Destination,
		Driver:      req.Driver,
		BusNumber:   req.BusNumber,
	})
	return err
}

func deleteRun(ctx context.Context, rec store.Records, form url.Values) error {
	req, err := decodeDeleteRun(form)
	if err != nil {
		return err
	}
	return rec.DeleteRun(ctx, req.ID)
}
