package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/homeworks-core/internal/bridges/homeworks"
)

// CommandSubmitter is the slice of the protocol client the device tools
// need: submit a command, get the decoded reply.
type CommandSubmitter interface {
	Submit(ctx context.Context, cmd *homeworks.Command) (any, error)
}

// Input schemas for the device tools.
const (
	schemaIID = `{"type":"object","properties":{"iid":{"type":"integer","description":"Integration ID of the target"}},"required":["iid"]}`

	schemaIIDLevel = `{"type":"object","properties":{"iid":{"type":"integer","description":"Integration ID of the target"},"level":{"type":"number","description":"Level percentage, 0 to 100"}},"required":["iid","level"]}`

	schemaIIDScene = `{"type":"object","properties":{"iid":{"type":"integer","description":"Integration ID of the area"},"scene":{"type":"integer","description":"Scene number, 0 to 32"}},"required":["iid","scene"]}`

	schemaIIDSeconds = `{"type":"object","properties":{"iid":{"type":"integer","description":"Integration ID of the output"},"seconds":{"type":"integer","description":"Pulse time in seconds"}},"required":["iid","seconds"]}`

	schemaEnabled = `{"type":"object","properties":{"enabled":{"type":"boolean","description":"Whether load shedding is active"}},"required":["enabled"]}`

	schemaEmpty = `{"type":"object","properties":{}}`
)

type iidArgs struct {
	IID int `json:"iid"`
}

type levelArgs struct {
	IID   int     `json:"iid"`
	Level float64 `json:"level"`
}

type sceneArgs struct {
	IID   int `json:"iid"`
	Scene int `json:"scene"`
}

type pulseArgs struct {
	IID     int `json:"iid"`
	Seconds int `json:"seconds"`
}

type enabledArgs struct {
	Enabled bool `json:"enabled"`
}

// decodeArgs unmarshals tool arguments, treating absent arguments as an
// empty object.
func decodeArgs(args json.RawMessage, v any) error {
	if len(args) == 0 {
		args = json.RawMessage("{}")
	}
	if err := json.Unmarshal(args, v); err != nil {
		return fmt.Errorf("invalid arguments: %w", err)
	}
	return nil
}

func requireIID(iid int) error {
	if iid < 1 {
		return errors.New("iid must be a positive integer")
	}
	return nil
}

// RegisterDeviceTools adds the processor control tools to the registry.
// Every tool submits one command through the engine and returns the
// decoded reply; commands the processor never acknowledges return "ok"
// once the settle window passes.
func RegisterDeviceTools(r *ToolRegistry, submit CommandSubmitter) { //nolint:funlen // Flat tool table
	run := func(ctx context.Context, cmd *homeworks.Command) (any, error) {
		return submit.Submit(ctx, cmd)
	}

	// Output (zone) control.

	r.mustRegister(Tool{
		Name:        "get_output_level",
		Description: "Get the current level of an output (dimmer, switch, shade) as a percentage.",
		InputSchema: json.RawMessage(schemaIID),
	}, func(ctx context.Context, args json.RawMessage) (any, error) {
		var a iidArgs
		if err := decodeArgs(args, &a); err != nil {
			return nil, err
		}
		if err := requireIID(a.IID); err != nil {
			return nil, err
		}
		level, err := run(ctx, homeworks.QueryOutputLevel(a.IID))
		if err != nil {
			return nil, err
		}
		return map[string]any{"iid": a.IID, "level": level}, nil
	})

	r.mustRegister(Tool{
		Name:        "set_output_level",
		Description: "Set an output to a level percentage (0 turns it off, 100 full on).",
		InputSchema: json.RawMessage(schemaIIDLevel),
	}, func(ctx context.Context, args json.RawMessage) (any, error) {
		var a levelArgs
		if err := decodeArgs(args, &a); err != nil {
			return nil, err
		}
		if err := requireIID(a.IID); err != nil {
			return nil, err
		}
		cmd, err := homeworks.SetOutputLevel(a.IID, a.Level)
		if err != nil {
			return nil, err
		}
		return run(ctx, cmd)
	})

	r.mustRegister(Tool{
		Name:        "raise_output",
		Description: "Start raising an output level. Continues until stop_output is called.",
		InputSchema: json.RawMessage(schemaIID),
	}, func(ctx context.Context, args json.RawMessage) (any, error) {
		var a iidArgs
		if err := decodeArgs(args, &a); err != nil {
			return nil, err
		}
		if err := requireIID(a.IID); err != nil {
			return nil, err
		}
		return run(ctx, homeworks.StartRaiseOutput(a.IID))
	})

	r.mustRegister(Tool{
		Name:        "lower_output",
		Description: "Start lowering an output level. Continues until stop_output is called.",
		InputSchema: json.RawMessage(schemaIID),
	}, func(ctx context.Context, args json.RawMessage) (any, error) {
		var a iidArgs
		if err := decodeArgs(args, &a); err != nil {
			return nil, err
		}
		if err := requireIID(a.IID); err != nil {
			return nil, err
		}
		return run(ctx, homeworks.StartLowerOutput(a.IID))
	})

	r.mustRegister(Tool{
		Name:        "stop_output",
		Description: "Stop an in-progress raise or lower on an output.",
		InputSchema: json.RawMessage(schemaIID),
	}, func(ctx context.Context, args json.RawMessage) (any, error) {
		var a iidArgs
		if err := decodeArgs(args, &a); err != nil {
			return nil, err
		}
		if err := requireIID(a.IID); err != nil {
			return nil, err
		}
		return run(ctx, homeworks.StopOutput(a.IID))
	})

	r.mustRegister(Tool{
		Name:        "set_output_pulse_time",
		Description: "Pulse an output on for the given number of seconds.",
		InputSchema: json.RawMessage(schemaIIDSeconds),
	}, func(ctx context.Context, args json.RawMessage) (any, error) {
		var a pulseArgs
		if err := decodeArgs(args, &a); err != nil {
			return nil, err
		}
		if err := requireIID(a.IID); err != nil {
			return nil, err
		}
		cmd, err := homeworks.SetOutputPulseTime(a.IID, a.Seconds)
		if err != nil {
			return nil, err
		}
		return run(ctx, cmd)
	})

	// Area control.

	r.mustRegister(Tool{
		Name:        "set_area_level",
		Description: "Set every output in an area to a level percentage.",
		InputSchema: json.RawMessage(schemaIIDLevel),
	}, func(ctx context.Context, args json.RawMessage) (any, error) {
		var a levelArgs
		if err := decodeArgs(args, &a); err != nil {
			return nil, err
		}
		if err := requireIID(a.IID); err != nil {
			return nil, err
		}
		cmd, err := homeworks.SetAreaLevel(a.IID, a.Level)
		if err != nil {
			return nil, err
		}
		return run(ctx, cmd)
	})

	r.mustRegister(Tool{
		Name:        "raise_area",
		Description: "Start raising every output in an area. Continues until stop_area is called.",
		InputSchema: json.RawMessage(schemaIID),
	}, func(ctx context.Context, args json.RawMessage) (any, error) {
		var a iidArgs
		if err := decodeArgs(args, &a); err != nil {
			return nil, err
		}
		if err := requireIID(a.IID); err != nil {
			return nil, err
		}
		return run(ctx, homeworks.StartRaiseArea(a.IID))
	})

	r.mustRegister(Tool{
		Name:        "lower_area",
		Description: "Start lowering every output in an area. Continues until stop_area is called.",
		InputSchema: json.RawMessage(schemaIID),
	}, func(ctx context.Context, args json.RawMessage) (any, error) {
		var a iidArgs
		if err := decodeArgs(args, &a); err != nil {
			return nil, err
		}
		if err := requireIID(a.IID); err != nil {
			return nil, err
		}
		return run(ctx, homeworks.StartLowerArea(a.IID))
	})

	r.mustRegister(Tool{
		Name:        "stop_area",
		Description: "Stop an in-progress raise or lower on an area.",
		InputSchema: json.RawMessage(schemaIID),
	}, func(ctx context.Context, args json.RawMessage) (any, error) {
		var a iidArgs
		if err := decodeArgs(args, &a); err != nil {
			return nil, err
		}
		if err := requireIID(a.IID); err != nil {
			return nil, err
		}
		return run(ctx, homeworks.StopArea(a.IID))
	})

	r.mustRegister(Tool{
		Name:        "get_area_scene",
		Description: "Get the active scene number of an area. Returns null when the area is in a mixed state.",
		InputSchema: json.RawMessage(schemaIID),
	}, func(ctx context.Context, args json.RawMessage) (any, error) {
		var a iidArgs
		if err := decodeArgs(args, &a); err != nil {
			return nil, err
		}
		if err := requireIID(a.IID); err != nil {
			return nil, err
		}
		scene, err := run(ctx, homeworks.QueryAreaScene(a.IID))
		if err != nil {
			return nil, err
		}
		return map[string]any{"iid": a.IID, "scene": scene}, nil
	})

	r.mustRegister(Tool{
		Name:        "set_area_scene",
		Description: "Activate a scene in an area (scene 0 is off).",
		InputSchema: json.RawMessage(schemaIIDScene),
	}, func(ctx context.Context, args json.RawMessage) (any, error) {
		var a sceneArgs
		if err := decodeArgs(args, &a); err != nil {
			return nil, err
		}
		if err := requireIID(a.IID); err != nil {
			return nil, err
		}
		cmd, err := homeworks.SetAreaScene(a.IID, a.Scene)
		if err != nil {
			return nil, err
		}
		return run(ctx, cmd)
	})

	// Shade group control.

	r.mustRegister(Tool{
		Name:        "get_shade_group_level",
		Description: "Get the current level of a shade group as a percentage.",
		InputSchema: json.RawMessage(schemaIID),
	}, func(ctx context.Context, args json.RawMessage) (any, error) {
		var a iidArgs
		if err := decodeArgs(args, &a); err != nil {
			return nil, err
		}
		if err := requireIID(a.IID); err != nil {
			return nil, err
		}
		level, err := run(ctx, homeworks.QueryShadeGroupLevel(a.IID))
		if err != nil {
			return nil, err
		}
		return map[string]any{"iid": a.IID, "level": level}, nil
	})

	r.mustRegister(Tool{
		Name:        "set_shade_group_level",
		Description: "Set a shade group to a level percentage (0 closed, 100 open).",
		InputSchema: json.RawMessage(schemaIIDLevel),
	}, func(ctx context.Context, args json.RawMessage) (any, error) {
		var a levelArgs
		if err := decodeArgs(args, &a); err != nil {
			return nil, err
		}
		if err := requireIID(a.IID); err != nil {
			return nil, err
		}
		cmd, err := homeworks.SetShadeGroupLevel(a.IID, a.Level)
		if err != nil {
			return nil, err
		}
		return run(ctx, cmd)
	})

	r.mustRegister(Tool{
		Name:        "raise_shade_group",
		Description: "Start raising a shade group. Continues until stop_shade_group is called.",
		InputSchema: json.RawMessage(schemaIID),
	}, func(ctx context.Context, args json.RawMessage) (any, error) {
		var a iidArgs
		if err := decodeArgs(args, &a); err != nil {
			return nil, err
		}
		if err := requireIID(a.IID); err != nil {
			return nil, err
		}
		return run(ctx, homeworks.StartRaiseShadeGroup(a.IID))
	})

	r.mustRegister(Tool{
		Name:        "lower_shade_group",
		Description: "Start lowering a shade group. Continues until stop_shade_group is called.",
		InputSchema: json.RawMessage(schemaIID),
	}, func(ctx context.Context, args json.RawMessage) (any, error) {
		var a iidArgs
		if err := decodeArgs(args, &a); err != nil {
			return nil, err
		}
		if err := requireIID(a.IID); err != nil {
			return nil, err
		}
		return run(ctx, homeworks.StartLowerShadeGroup(a.IID))
	})

	r.mustRegister(Tool{
		Name:        "stop_shade_group",
		Description: "Stop an in-progress raise or lower on a shade group.",
		InputSchema: json.RawMessage(schemaIID),
	}, func(ctx context.Context, args json.RawMessage) (any, error) {
		var a iidArgs
		if err := decodeArgs(args, &a); err != nil {
			return nil, err
		}
		if err := requireIID(a.IID); err != nil {
			return nil, err
		}
		return run(ctx, homeworks.StopShadeGroup(a.IID))
	})

	r.mustRegister(Tool{
		Name:        "get_shade_group_preset",
		Description: "Get the current preset of a shade group. Returns null when shades are between presets.",
		InputSchema: json.RawMessage(schemaIID),
	}, func(ctx context.Context, args json.RawMessage) (any, error) {
		var a iidArgs
		if err := decodeArgs(args, &a); err != nil {
			return nil, err
		}
		if err := requireIID(a.IID); err != nil {
			return nil, err
		}
		preset, err := run(ctx, homeworks.QueryShadeGroupPreset(a.IID))
		if err != nil {
			return nil, err
		}
		return map[string]any{"iid": a.IID, "preset": preset}, nil
	})

	// System queries.

	r.mustRegister(Tool{
		Name:        "get_system_time",
		Description: "Get the processor's current local time.",
		InputSchema: json.RawMessage(schemaEmpty),
	}, func(ctx context.Context, _ json.RawMessage) (any, error) {
		v, err := run(ctx, homeworks.QuerySystemTime())
		if err != nil {
			return nil, err
		}
		return map[string]any{"time": v}, nil
	})

	r.mustRegister(Tool{
		Name:        "get_system_date",
		Description: "Get the processor's current date.",
		InputSchema: json.RawMessage(schemaEmpty),
	}, func(ctx context.Context, _ json.RawMessage) (any, error) {
		v, err := run(ctx, homeworks.QuerySystemDate())
		if err != nil {
			return nil, err
		}
		return map[string]any{"date": v}, nil
	})

	r.mustRegister(Tool{
		Name:        "get_system_location",
		Description: "Get the latitude and longitude the processor uses for astronomic times.",
		InputSchema: json.RawMessage(schemaEmpty),
	}, func(ctx context.Context, _ json.RawMessage) (any, error) {
		v, err := run(ctx, homeworks.QuerySystemLatLong())
		if err != nil {
			return nil, err
		}
		coords, ok := v.([2]float64)
		if !ok {
			return nil, fmt.Errorf("unexpected location reply %v", v)
		}
		return map[string]any{"latitude": coords[0], "longitude": coords[1]}, nil
	})

	r.mustRegister(Tool{
		Name:        "get_system_timezone",
		Description: "Get the processor's UTC offset.",
		InputSchema: json.RawMessage(schemaEmpty),
	}, func(ctx context.Context, _ json.RawMessage) (any, error) {
		v, err := run(ctx, homeworks.QuerySystemTimezone())
		if err != nil {
			return nil, err
		}
		offset, ok := v.(time.Duration)
		if !ok {
			return nil, fmt.Errorf("unexpected timezone reply %v", v)
		}
		return map[string]any{"utc_offset": offset.String()}, nil
	})

	r.mustRegister(Tool{
		Name:        "get_sunset",
		Description: "Get today's sunset time at the processor's location.",
		InputSchema: json.RawMessage(schemaEmpty),
	}, func(ctx context.Context, _ json.RawMessage) (any, error) {
		v, err := run(ctx, homeworks.QuerySunset())
		if err != nil {
			return nil, err
		}
		return map[string]any{"sunset": v}, nil
	})

	r.mustRegister(Tool{
		Name:        "get_sunrise",
		Description: "Get today's sunrise time at the processor's location.",
		InputSchema: json.RawMessage(schemaEmpty),
	}, func(ctx context.Context, _ json.RawMessage) (any, error) {
		v, err := run(ctx, homeworks.QuerySunrise())
		if err != nil {
			return nil, err
		}
		return map[string]any{"sunrise": v}, nil
	})

	r.mustRegister(Tool{
		Name:        "get_os_revision",
		Description: "Get the processor's operating system revision string.",
		InputSchema: json.RawMessage(schemaEmpty),
	}, func(ctx context.Context, _ json.RawMessage) (any, error) {
		v, err := run(ctx, homeworks.QueryOSRevision())
		if err != nil {
			return nil, err
		}
		return map[string]any{"revision": v}, nil
	})

	r.mustRegister(Tool{
		Name:        "set_load_shed",
		Description: "Enable or disable load shedding on the processor.",
		InputSchema: json.RawMessage(schemaEnabled),
	}, func(ctx context.Context, args json.RawMessage) (any, error) {
		var a enabledArgs
		if err := decodeArgs(args, &a); err != nil {
			return nil, err
		}
		return run(ctx, homeworks.SetLoadShed(a.Enabled))
	})
}
