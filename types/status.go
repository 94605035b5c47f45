package types

import "fmt"

// StatusCode is the operational status of a line or station
type StatusCode string

const (
	// StatusClosedForSchedule means the network is outside its service hours
	StatusClosedForSchedule StatusCode = "0"
	// StatusOperating means normal operation
	StatusOperating StatusCode = "1"
	// StatusClosed means the line or station is closed
	StatusClosed StatusCode = "2"
	// StatusPartialClosure means part of the line is closed
	StatusPartialClosure StatusCode = "3"
	// StatusDelayed means trains are running with reduced frequency
	StatusDelayed StatusCode = "4"
	// StatusExtendedRoute means the line runs an extended route
	StatusExtendedRoute StatusCode = "5"
)

var statusCodes = map[string]StatusCode{
	"0": StatusClosedForSchedule,
	"1": StatusOperating,
	"2": StatusClosed,
	"3": StatusPartialClosure,
	"4": StatusDelayed,
	"5": StatusExtendedRoute,
}

// ParseStatusCode maps a raw upstream status code into a StatusCode.
// Unmapped codes are an error, never a default.
func ParseStatusCode(raw string) (StatusCode, error) {
	code, ok := statusCodes[raw]
	if !ok {
		return "", fmt.Errorf("unmapped status code %q", raw)
	}
	return code, nil
}

// LineMessages are the human readable descriptions of a line's status
type LineMessages struct {
	Primary   string
	Secondary *string
}

// StationMessages are the human readable descriptions of a station's status
type StationMessages struct {
	Primary   string
	Secondary string
	Tertiary  *string
}

// StationStatus is the status of a station within a line
type StationStatus struct {
	Code       string
	Name       string
	StatusCode StatusCode
	Transfer   *LineID
	Messages   StationMessages
}

// LineStatus is the current condition of a network line
type LineStatus struct {
	ID         LineID
	StatusCode StatusCode
	Messages   LineMessages
	Stations   []*StationStatus
}

// Network is the status of every known line, in display order
type Network []*LineStatus

// Line returns the status for the line with the given ID, or nil if the line
// is not present
func (n Network) Line(id LineID) *LineStatus {
	for _, l := range n {
		if l.ID == id {
			return l
		}
	}
	return nil
}

// Stations returns the stations of every line, in line order
func (n Network) Stations() []*StationStatus {
	stations := []*StationStatus{}
	for _, l := range n {
		stations = append(stations, l.Stations...)
	}
	return stations
}

// CloseForSchedule overrides the status of the line and all its stations to
// StatusClosedForSchedule
func (s *LineStatus) CloseForSchedule() {
	s.StatusCode = StatusClosedForSchedule
	for _, station := range s.Stations {
		station.StatusCode = StatusClosedForSchedule
	}
}
