package tools

import (
	"strconv"
	"strings"
)

// Progress is one streaming update from an ffmpeg run, assembled from the
// key=value blocks of -progress output.
type Progress struct {
	Percent      float64 `json:"percent"`
	FrameCurrent int64   `json:"frame_current,omitempty"`
	FrameTotal   int64   `json:"frame_total,omitempty"`
	TimeCurrentS float64 `json:"time_current_s,omitempty"`
	TimeTotalS   float64 `json:"time_total_s,omitempty"`
	FPS          float64 `json:"fps,omitempty"`
	Bitrate      string  `json:"bitrate,omitempty"`
	SizeCurrent  int64   `json:"size_current,omitempty"`
	EtaS         float64 `json:"eta_s,omitempty"`
	Speed        float64 `json:"-"`
	Done         bool    `json:"-"`
}

// progressParser accumulates -progress key=value lines. ffmpeg terminates
// each block with a progress=continue or progress=end line; the completed
// block is emitted then.
type progressParser struct {
	durationSeconds float64
	frameTotal      int64
	current         Progress
	emit            func(Progress)
}

func newProgressParser(durationSeconds float64, frameTotal int64, emit func(Progress)) *progressParser {
	return &progressParser{durationSeconds: durationSeconds, frameTotal: frameTotal, emit: emit}
}

func (p *progressParser) Line(line string) {
	key, value, ok := strings.Cut(strings.TrimSpace(line), "=")
	if !ok {
		return
	}
	value = strings.TrimSpace(value)
	switch key {
	case "frame":
		p.current.FrameCurrent, _ = strconv.ParseInt(value, 10, 64)
	case "fps":
		p.current.FPS, _ = strconv.ParseFloat(value, 64)
	case "bitrate":
		if value != "N/A" {
			p.current.Bitrate = value
		}
	case "total_size":
		p.current.SizeCurrent, _ = strconv.ParseInt(value, 10, 64)
	case "out_time_us":
		if us, err := strconv.ParseInt(value, 10, 64); err == nil {
			p.current.TimeCurrentS = float64(us) / 1e6
		}
	case "speed":
		p.current.Speed, _ = strconv.ParseFloat(strings.TrimSuffix(value, "x"), 64)
	case "progress":
		p.current.Done = value == "end"
		p.finishBlock()
	}
}

func (p *progressParser) finishBlock() {
	update := p.current
	update.TimeTotalS = p.durationSeconds
	update.FrameTotal = p.frameTotal
	if p.durationSeconds > 0 {
		update.Percent = update.TimeCurrentS / p.durationSeconds * 100
		if update.Percent > 100 {
			update.Percent = 100
		}
		if update.Speed > 0 {
			update.EtaS = (p.durationSeconds - update.TimeCurrentS) / update.Speed
			if update.EtaS < 0 {
				update.EtaS = 0
			}
		}
	}
	if update.Done {
		update.Percent = 100
		update.EtaS = 0
	}
	if p.emit != nil {
		p.emit(update)
	}
	p.current = Progress{}
}
