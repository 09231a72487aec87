package playbackmodule

import (
	"fmt"
	"strings"
)

// Membership sets for browser-playable media. Consulted case-insensitively;
// anything outside them needs server-side help.
var (
	supportedVideoCodecs = []string{"h264", "vp8", "vp9", "av1"}
	supportedAudioCodecs = []string{"aac", "mp3", "opus", "vorbis", "flac"}
	supportedContainers  = []string{"mp4", "m4v", "webm"}
)

// DecideStream maps codec and container facts to a playback strategy. Pure
// and total: identical inputs always yield the identical decision.
//
// Rule order: everything supported plays direct; a supported video track with
// an unplayable audio track or container only needs a remux (directstream);
// an unsupported video track forces a full transcode.
func DecideStream(videoCodec, audioCodec, container string) StreamDecision {
	videoOK := isSupported(videoCodec, supportedVideoCodecs)
	audioOK := isSupported(audioCodec, supportedAudioCodecs)
	containerOK := isSupported(container, supportedContainers)

	if !videoOK {
		return StreamDecision{
			Mode:   DecisionTranscode,
			Reason: fmt.Sprintf("video codec %s is not playable in the browser", videoCodec),
		}
	}

	if audioOK && containerOK {
		return StreamDecision{Mode: DecisionDirect}
	}

	// Audio failure is reported first when both audio and container fail.
	if !audioOK {
		return StreamDecision{
			Mode:   DecisionDirectStream,
			Reason: fmt.Sprintf("audio codec %s is not playable in the browser", audioCodec),
		}
	}
	return StreamDecision{
		Mode:   DecisionDirectStream,
		Reason: fmt.Sprintf("container %s is not playable in the browser", container),
	}
}

func isSupported(value string, supported []string) bool {
	for _, s := range supported {
		if strings.EqualFold(value, s) {
			return true
		}
	}
	return false
}
