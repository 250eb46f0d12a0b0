package domain

import "errors"

var (
	// ErrInvalidMood indicates that the mood is not one of the known moods.
	ErrInvalidMood = errors.New("mood must be one of calm, neutral, stressed, anxious")

	// ErrInvalidDuration indicates that a session duration is not positive.
	ErrInvalidDuration = errors.New("duration must be at least 1 second")

	// ErrInvalidVolume indicates that a track volume is outside 0..1.
	ErrInvalidVolume = errors.New("volume must be between 0 and 1")

	// ErrMediaOpen indicates that a media source could not be opened.
	ErrMediaOpen = errors.New("open media source")

	// ErrLoadSuperseded indicates that a Stop or a newer Load replaced a load in flight.
	ErrLoadSuperseded = errors.New("load superseded")

	// ErrNotLoaded indicates that playback was requested before a successful load.
	ErrNotLoaded = errors.New("no media loaded")

	// ErrInvalidSleepMode indicates an unusable sleep timer setting.
	ErrInvalidSleepMode = errors.New("sleep timer needs a positive delay or end-of-session")

	// ErrAdmissionDenied indicates that a gated session was not admitted.
	ErrAdmissionDenied = errors.New("ad not completed")

	// ErrAdNotReady indicates the ad source had no inventory for the request.
	ErrAdNotReady = errors.New("no ad ready")

	// ErrAdPresent indicates that a ready ad failed to present.
	ErrAdPresent = errors.New("ad failed to present")

	ErrSessionNotFound = errors.New("session not found")
)
