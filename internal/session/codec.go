package session

import (
	"fmt"

	"mediastream/internal/domain"
	"mediastream/internal/domain/ports"
)

// CodecProfile is one entry in the ordered negotiation list. Guidance is
// surfaced to the UI when no profile is supported at all.
type CodecProfile struct {
	Name      string
	MimeCodec string
	Guidance  string
}

// VideoCodecProfiles returns the negotiation order for video playback:
// higher-efficiency codecs first, broadest compatibility last.
func VideoCodecProfiles() []CodecProfile {
	return []CodecProfile{
		{
			Name:      "hevc-main",
			MimeCodec: `video/mp4; codecs="hvc1.1.6.L93.B0,mp4a.40.2"`,
			Guidance:  "HEVC playback requires Safari or a browser with platform HEVC support",
		},
		{
			Name:      "h264-high",
			MimeCodec: `video/mp4; codecs="avc1.640028,mp4a.40.2"`,
			Guidance:  "H.264 High profile is supported by all modern browsers",
		},
		{
			Name:      "h264-baseline",
			MimeCodec: `video/mp4; codecs="avc1.42E01E,mp4a.40.2"`,
			Guidance:  "H.264 Baseline is the last-resort compatibility profile",
		},
		{
			Name:      "vp9",
			MimeCodec: `video/webm; codecs="vp09.00.10.08,opus"`,
			Guidance:  "VP9/WebM requires Chrome, Firefox or Edge",
		},
	}
}

// AudioCodecProfiles returns the negotiation order for audio-only playback.
func AudioCodecProfiles() []CodecProfile {
	return []CodecProfile{
		{
			Name:      "aac-lc",
			MimeCodec: `audio/mp4; codecs="mp4a.40.2"`,
			Guidance:  "AAC-LC is supported everywhere",
		},
		{
			Name:      "opus",
			MimeCodec: `audio/webm; codecs="opus"`,
			Guidance:  "Opus/WebM requires Chrome, Firefox or Edge",
		},
	}
}

// negotiateCodec probes the sink with each profile in order and returns
// the first supported one. A miss on every profile is a terminal
// capability error carrying browser guidance for the last-resort entry.
func negotiateCodec(sink ports.Sink, profiles []CodecProfile) (CodecProfile, error) {
	for _, p := range profiles {
		if sink.Supports(p.MimeCodec) {
			return p, nil
		}
	}
	var guidance string
	if len(profiles) > 0 {
		guidance = profiles[len(profiles)-1].Guidance
	}
	return CodecProfile{}, domain.NewCapabilityError(
		fmt.Errorf("no supported codec among %d profiles; %s", len(profiles), guidance))
}
