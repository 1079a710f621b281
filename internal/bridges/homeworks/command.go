package homeworks

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Command families defined by the integration protocol.
const (
	FamilyOutput     = "OUTPUT"
	FamilyArea       = "AREA"
	FamilyShadeGroup = "SHADEGRP"
	FamilySystem     = "SYSTEM"
	FamilyError      = "ERROR"
)

// Action numbers shared by OUTPUT, AREA and SHADEGRP.
const (
	actionZoneLevel     = 1
	actionStartRaise    = 2
	actionStartLower    = 3
	actionStopRaiseLow  = 4
	actionPulseTime     = 5
	actionScene         = 6 // AREA: scene, SHADEGRP: current preset
)

// SYSTEM action numbers.
const (
	sysActionTime     = 1
	sysActionDate     = 2
	sysActionLatLong  = 4
	sysActionTimezone = 5
	sysActionSunset   = 6
	sysActionSunrise  = 7
	sysActionOSRev    = 8
	sysActionLoadShed = 11
)

// Kind distinguishes query commands from execute commands.
type Kind int

// Command kinds.
const (
	// KindQuery reads state ("?OUTPUT,5,1").
	KindQuery Kind = iota

	// KindExecute changes state ("#OUTPUT,5,1,75").
	KindExecute
)

// processor converts a reply payload into a typed value.
type processor func(payload []string) (any, error)

// Command is one outgoing protocol command together with the information
// needed to recognise and decode its reply.
//
// echo holds the fields the processor repeats back in the reply (the
// family's address and action tokens); params holds execute parameters,
// which are not echoed. The reply matcher compares echo against the
// leading fields of a response line; whatever remains is the payload.
type Command struct {
	family     string
	kind       Kind
	echo       []string
	params     []string
	noResponse bool
	matchRaw   bool
	process    processor
}

// Family returns the command family name (e.g. "OUTPUT").
func (c *Command) Family() string { return c.family }

// NoResponse reports whether the processor never acknowledges this
// command. Such commands resolve after a short settle window instead of
// waiting for a reply.
func (c *Command) NoResponse() bool { return c.noResponse }

// matchesAnyLine reports whether this command claims the next bare text
// line instead of a ~-reply (OS revision answers with unprefixed text).
func (c *Command) matchesAnyLine() bool { return c.matchRaw }

// Format renders the full command string without terminator.
func (c *Command) Format() string {
	prefix := QueryPrefix
	if c.kind == KindExecute {
		prefix = ExecutePrefix
	}

	parts := make([]string, 0, 1+len(c.echo)+len(c.params))
	parts = append(parts, c.family)
	parts = append(parts, c.echo...)
	parts = append(parts, c.params...)
	return prefix + strings.Join(parts, ",")
}

// Matches checks a response line against this command's reply matcher.
//
// A reply matches when the family and every echoed field compare equal;
// the remaining fields are returned as the payload. The comparison is
// string-wise: the processor echoes tokens verbatim.
func (c *Command) Matches(line Line) (payload []string, ok bool) {
	if line.Class != LineResponse || line.Command != c.family {
		return nil, false
	}
	if len(line.Fields) < len(c.echo) {
		return nil, false
	}
	for i, want := range c.echo {
		if line.Fields[i] != want {
			return nil, false
		}
	}
	return line.Fields[len(c.echo):], true
}

// decode runs the command's payload processor.
func (c *Command) decode(payload []string) (any, error) {
	if c.process == nil {
		if len(payload) == 1 {
			return payload[0], nil
		}
		return payload, nil
	}
	return c.process(payload)
}

// =============================================================================
// Payload processors
// =============================================================================

func firstField(payload []string) (string, error) {
	if len(payload) == 0 {
		return "", fmt.Errorf("%w: empty reply payload", ErrInvalidArgument)
	}
	return payload[0], nil
}

func toFloat(payload []string) (any, error) {
	s, err := firstField(payload)
	if err != nil {
		return nil, err
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, fmt.Errorf("homeworks: invalid float %q: %w", s, err)
	}
	return v, nil
}

func toInt(payload []string) (any, error) {
	s, err := firstField(payload)
	if err != nil {
		return nil, err
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return nil, fmt.Errorf("homeworks: invalid integer %q: %w", s, err)
	}
	return v, nil
}

// toIntOrUnknown tolerates non-numeric scene replies; the processor
// reports "UNKNOWN" for areas with no active scene.
func toIntOrUnknown(payload []string) (any, error) {
	s, err := firstField(payload)
	if err != nil {
		return nil, err
	}
	if v, convErr := strconv.Atoi(s); convErr == nil {
		return v, nil
	}
	return nil, nil
}

func toClock(payload []string) (any, error) {
	s, err := firstField(payload)
	if err != nil {
		return nil, err
	}
	t, err := time.Parse("15:04:05", s)
	if err != nil {
		return nil, fmt.Errorf("homeworks: invalid time %q: %w", s, err)
	}
	return t.Format("15:04:05"), nil
}

func toDate(payload []string) (any, error) {
	s, err := firstField(payload)
	if err != nil {
		return nil, err
	}
	t, err := time.Parse("01/02/2006", s)
	if err != nil {
		return nil, fmt.Errorf("homeworks: invalid date %q: %w", s, err)
	}
	return t.Format("2006-01-02"), nil
}

func toLatLong(payload []string) (any, error) {
	if len(payload) < 2 {
		return nil, fmt.Errorf("%w: lat/long reply needs two fields", ErrInvalidArgument)
	}
	lat, err := strconv.ParseFloat(payload[0], 64)
	if err != nil {
		return nil, fmt.Errorf("homeworks: invalid latitude %q: %w", payload[0], err)
	}
	long, err := strconv.ParseFloat(payload[1], 64)
	if err != nil {
		return nil, fmt.Errorf("homeworks: invalid longitude %q: %w", payload[1], err)
	}
	return [2]float64{lat, long}, nil
}

// toUTCOffset parses a "[+-]HH:MM" timezone offset into a Duration.
func toUTCOffset(payload []string) (any, error) {
	s, err := firstField(payload)
	if err != nil {
		return nil, err
	}

	sign := time.Duration(1)
	switch {
	case strings.HasPrefix(s, "-"):
		sign = -1
		s = s[1:]
	case strings.HasPrefix(s, "+"):
		s = s[1:]
	}

	hh, mm, found := strings.Cut(s, ":")
	if !found {
		return nil, fmt.Errorf("homeworks: invalid timezone offset %q", payload[0])
	}
	hours, err := strconv.Atoi(hh)
	if err != nil {
		return nil, fmt.Errorf("homeworks: invalid timezone offset %q: %w", payload[0], err)
	}
	minutes, err := strconv.Atoi(mm)
	if err != nil {
		return nil, fmt.Errorf("homeworks: invalid timezone offset %q: %w", payload[0], err)
	}
	return sign * (time.Duration(hours)*time.Hour + time.Duration(minutes)*time.Minute), nil
}

func toString(payload []string) (any, error) {
	return strings.Join(payload, ","), nil
}

// =============================================================================
// OUTPUT commands
// =============================================================================

func validLevel(level float64) error {
	if level < 0 || level > 100 {
		return fmt.Errorf("%w: level %.2f out of range 0-100", ErrInvalidArgument, level)
	}
	return nil
}

// formatLevel renders a dimmer level the way the processor expects:
// integers bare, fractions with two decimals.
func formatLevel(level float64) string {
	if level == float64(int64(level)) {
		return strconv.FormatInt(int64(level), 10)
	}
	return strconv.FormatFloat(level, 'f', 2, 64)
}

// QueryOutputLevel reads an output's current level (0-100).
func QueryOutputLevel(iid int) *Command {
	return &Command{
		family:  FamilyOutput,
		kind:    KindQuery,
		echo:    []string{strconv.Itoa(iid), strconv.Itoa(actionZoneLevel)},
		process: toFloat,
	}
}

// SetOutputLevel sets an output's level (0-100). The processor confirms
// with an ~OUTPUT reply carrying the applied level.
func SetOutputLevel(iid int, level float64) (*Command, error) {
	if err := validLevel(level); err != nil {
		return nil, err
	}
	return &Command{
		family:  FamilyOutput,
		kind:    KindExecute,
		echo:    []string{strconv.Itoa(iid), strconv.Itoa(actionZoneLevel)},
		params:  []string{formatLevel(level)},
		process: toFloat,
	}, nil
}

// StartRaiseOutput starts raising an output. No reply.
func StartRaiseOutput(iid int) *Command {
	return noResponseCommand(FamilyOutput, iid, actionStartRaise)
}

// StartLowerOutput starts lowering an output. No reply.
func StartLowerOutput(iid int) *Command {
	return noResponseCommand(FamilyOutput, iid, actionStartLower)
}

// StopOutput stops a raise/lower in progress. No reply.
func StopOutput(iid int) *Command {
	return noResponseCommand(FamilyOutput, iid, actionStopRaiseLow)
}

// SetOutputPulseTime sets the pulse time of a pulsed output. No reply.
func SetOutputPulseTime(iid int, seconds int) (*Command, error) {
	if seconds < 0 {
		return nil, fmt.Errorf("%w: pulse time %d", ErrInvalidArgument, seconds)
	}
	cmd := noResponseCommand(FamilyOutput, iid, actionPulseTime)
	cmd.params = []string{strconv.Itoa(seconds)}
	return cmd, nil
}

func noResponseCommand(family string, iid, action int) *Command {
	return &Command{
		family:     family,
		kind:       KindExecute,
		echo:       []string{strconv.Itoa(iid), strconv.Itoa(action)},
		noResponse: true,
	}
}

// =============================================================================
// AREA commands
// =============================================================================

// SetAreaLevel sets every output in an area to a level. No reply.
func SetAreaLevel(iid int, level float64) (*Command, error) {
	if err := validLevel(level); err != nil {
		return nil, err
	}
	cmd := noResponseCommand(FamilyArea, iid, actionZoneLevel)
	cmd.params = []string{formatLevel(level)}
	return cmd, nil
}

// StartRaiseArea starts raising an area. No reply.
func StartRaiseArea(iid int) *Command {
	return noResponseCommand(FamilyArea, iid, actionStartRaise)
}

// StartLowerArea starts lowering an area. No reply.
func StartLowerArea(iid int) *Command {
	return noResponseCommand(FamilyArea, iid, actionStartLower)
}

// StopArea stops a raise/lower in progress. No reply.
func StopArea(iid int) *Command {
	return noResponseCommand(FamilyArea, iid, actionStopRaiseLow)
}

// QueryAreaScene reads an area's active scene. Resolves to an int scene
// number, or nil when the processor reports no coherent scene.
func QueryAreaScene(iid int) *Command {
	return &Command{
		family:  FamilyArea,
		kind:    KindQuery,
		echo:    []string{strconv.Itoa(iid), strconv.Itoa(actionScene)},
		process: toIntOrUnknown,
	}
}

// SetAreaScene activates a scene in an area.
func SetAreaScene(iid, scene int) (*Command, error) {
	if scene < 0 {
		return nil, fmt.Errorf("%w: scene %d", ErrInvalidArgument, scene)
	}
	return &Command{
		family:  FamilyArea,
		kind:    KindExecute,
		echo:    []string{strconv.Itoa(iid), strconv.Itoa(actionScene)},
		params:  []string{strconv.Itoa(scene)},
		process: toIntOrUnknown,
	}, nil
}

// =============================================================================
// SHADEGRP commands
// =============================================================================

// QueryShadeGroupLevel reads a shade group's level (0-100).
func QueryShadeGroupLevel(iid int) *Command {
	return &Command{
		family:  FamilyShadeGroup,
		kind:    KindQuery,
		echo:    []string{strconv.Itoa(iid), strconv.Itoa(actionZoneLevel)},
		process: toFloat,
	}
}

// SetShadeGroupLevel sets a shade group's level (0-100).
func SetShadeGroupLevel(iid int, level float64) (*Command, error) {
	if err := validLevel(level); err != nil {
		return nil, err
	}
	return &Command{
		family:  FamilyShadeGroup,
		kind:    KindExecute,
		echo:    []string{strconv.Itoa(iid), strconv.Itoa(actionZoneLevel)},
		params:  []string{formatLevel(level)},
		process: toFloat,
	}, nil
}

// StartRaiseShadeGroup starts raising a shade group. No reply.
func StartRaiseShadeGroup(iid int) *Command {
	return noResponseCommand(FamilyShadeGroup, iid, actionStartRaise)
}

// StartLowerShadeGroup starts lowering a shade group. No reply.
func StartLowerShadeGroup(iid int) *Command {
	return noResponseCommand(FamilyShadeGroup, iid, actionStartLower)
}

// StopShadeGroup stops a raise/lower in progress. No reply.
func StopShadeGroup(iid int) *Command {
	return noResponseCommand(FamilyShadeGroup, iid, actionStopRaiseLow)
}

// QueryShadeGroupPreset reads a shade group's current preset number.
func QueryShadeGroupPreset(iid int) *Command {
	return &Command{
		family:  FamilyShadeGroup,
		kind:    KindQuery,
		echo:    []string{strconv.Itoa(iid), strconv.Itoa(actionScene)},
		process: toInt,
	}
}

// =============================================================================
// SYSTEM commands
// =============================================================================

func systemQuery(action int, p processor) *Command {
	return &Command{
		family:  FamilySystem,
		kind:    KindQuery,
		echo:    []string{strconv.Itoa(action)},
		process: p,
	}
}

// QuerySystemTime reads the processor clock ("HH:MM:SS").
func QuerySystemTime() *Command { return systemQuery(sysActionTime, toClock) }

// QuerySystemDate reads the processor date ("YYYY-MM-DD").
func QuerySystemDate() *Command { return systemQuery(sysActionDate, toDate) }

// QuerySystemLatLong reads the configured latitude/longitude pair.
func QuerySystemLatLong() *Command { return systemQuery(sysActionLatLong, toLatLong) }

// QuerySystemTimezone reads the UTC offset as a time.Duration.
func QuerySystemTimezone() *Command { return systemQuery(sysActionTimezone, toUTCOffset) }

// QuerySunset reads today's sunset time.
func QuerySunset() *Command { return systemQuery(sysActionSunset, toClock) }

// QuerySunrise reads today's sunrise time.
func QuerySunrise() *Command { return systemQuery(sysActionSunrise, toClock) }

// QueryOSRevision reads the firmware revision string. The processor
// answers this one with a bare text line rather than a ~SYSTEM reply, so
// the command claims the next unclassified line.
func QueryOSRevision() *Command {
	return &Command{
		family:   FamilySystem,
		kind:     KindQuery,
		echo:     []string{strconv.Itoa(sysActionOSRev)},
		matchRaw: true,
		process:  toString,
	}
}

// SetLoadShed enables or disables load shedding.
func SetLoadShed(enabled bool) *Command {
	v := "0"
	if enabled {
		v = "1"
	}
	return &Command{
		family:  FamilySystem,
		kind:    KindExecute,
		echo:    []string{strconv.Itoa(sysActionLoadShed)},
		params:  []string{v},
		process: toInt,
	}
}
