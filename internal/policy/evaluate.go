package policy

import (
	"fmt"
	"sort"
	"strings"

	"vpo/internal/language"
	"vpo/internal/media"
)

// LanguageInfo is a cached language-analysis result for one track.
type LanguageInfo struct {
	PrimaryLanguage string
	Confidence      float64
}

// Classification is a cached track classification for one track.
type Classification struct {
	Label      string
	Confidence float64
}

// Enrichment carries optional plugin-supplied context into an evaluation.
// All maps are keyed by track index except PluginMetadata, keyed by plugin
// name.
type Enrichment struct {
	PluginMetadata   map[string]map[string]string
	LanguageAnalysis map[int]LanguageInfo
	Classifications  map[int]Classification
}

// commentaryConfidenceFloor gates classification-based commentary removal.
const commentaryConfidenceFloor = 0.5

// Evaluate produces a deterministic Plan for one phase against one file.
// It is pure: no I/O, no clock. The only error it returns for a
// well-formed policy is *PolicyError, the constraint signal raised when the
// filter pass would cross a track floor.
func Evaluate(file media.FileInfo, cfg Config, phase PhaseDefinition, enrich Enrichment) (*Plan, error) {
	plan := &Plan{}

	dispositions, err := filterPass(file, cfg, phase, enrich)
	if err != nil {
		return nil, err
	}
	plan.Dispositions = dispositions
	for _, d := range dispositions {
		if d.Kept {
			plan.TracksKept++
		} else {
			plan.TracksRemoved++
		}
	}
	if plan.TracksRemoved > 0 {
		plan.RequiresRemux = true
	}

	kept := plan.KeptIndices()
	keptSet := make(map[int]struct{}, len(kept))
	for _, index := range kept {
		keptSet[index] = struct{}{}
	}

	var actions []PlannedAction
	if phase.DefaultFlags != nil {
		actions = append(actions, defaultFlagsPass(file, cfg, *phase.DefaultFlags, keptSet)...)
	}
	actions = append(actions, metadataPass(file, phase, enrich, keptSet)...)

	if phase.TrackOrder != nil {
		desired := orderPass(file, cfg, *phase.TrackOrder, kept)
		if !equalOrder(desired, kept) {
			actions = append(actions, PlannedAction{
				Type:    ActionReorder,
				Current: encodeOrder(kept),
				Desired: encodeOrder(desired),
			})
			plan.RequiresRemux = true
		}
	}

	if phase.Container != nil {
		target := media.NormalizeContainer(phase.Container.Target)
		if target != "" && target != file.Container {
			plan.ContainerChange = &ContainerChange{Source: file.Container, Target: target}
			plan.RequiresRemux = true
			actions = append(actions, PlannedAction{
				Type:    ActionSetContainer,
				Current: file.Container,
				Desired: target,
			})
		}
	}

	if phase.AudioSynthesis != nil {
		plan.Synthesis = &SynthesisRequest{
			Downmix: phase.AudioSynthesis.Downmix,
			Codec:   phase.AudioSynthesis.Codec,
			Bitrate: phase.AudioSynthesis.Bitrate,
			Title:   phase.AudioSynthesis.Title,
		}
	}

	sortActions(actions)
	plan.Actions = actions
	return plan, nil
}

// sortActions fixes the total order: rank, then track index (file-level
// actions after per-track within a rank), then type for determinism when a
// track receives several metadata edits.
func sortActions(actions []PlannedAction) {
	metadataSubRank := func(t ActionType) int {
		switch t {
		case ActionSetTitle:
			return 0
		case ActionSetLanguage:
			return 1
		case ActionSetForced, ActionClearForced:
			return 2
		}
		return 3
	}
	sort.SliceStable(actions, func(i, j int) bool {
		ri, rj := actionRank(actions[i].Type), actionRank(actions[j].Type)
		if ri != rj {
			return ri < rj
		}
		ii, ij := trackIndexOrLast(actions[i]), trackIndexOrLast(actions[j])
		if ii != ij {
			return ii < ij
		}
		return metadataSubRank(actions[i].Type) < metadataSubRank(actions[j].Type)
	})
}

func trackIndexOrLast(action PlannedAction) int {
	if action.TrackIndex == nil {
		return 1 << 30
	}
	return *action.TrackIndex
}

func filterPass(file media.FileInfo, cfg Config, phase PhaseDefinition, enrich Enrichment) ([]TrackDisposition, error) {
	dispositions := make([]TrackDisposition, 0, len(file.Tracks))
	audioBefore, audioKept := 0, 0
	subBefore, subKept := 0, 0

	for _, track := range file.Tracks {
		kept, reason := true, "kept"
		switch track.Type {
		case media.TrackAudio:
			audioBefore++
			if phase.AudioFilter != nil {
				kept, reason = audioDisposition(track, cfg, *phase.AudioFilter, enrich)
			}
			if kept {
				audioKept++
			}
		case media.TrackSubtitle:
			subBefore++
			if phase.SubtitleFilter != nil {
				kept, reason = subtitleDisposition(track, *phase.SubtitleFilter)
			}
			if kept {
				subKept++
			}
		case media.TrackAttachment:
			if phase.AttachmentFilter != nil {
				kept, reason = attachmentDisposition(track, *phase.AttachmentFilter)
			}
		}
		dispositions = append(dispositions, TrackDisposition{Index: track.Index, Kept: kept, Reason: reason})
	}

	audioFloor := cfg.MinimumAudioTracks
	if audioFloor <= 0 {
		audioFloor = 1
	}
	if phase.AudioFilter != nil && audioBefore >= audioFloor && audioKept < audioFloor {
		return nil, constraintErr("would drop below audio floor (%d kept, floor %d)", audioKept, audioFloor)
	}
	if phase.SubtitleFilter != nil && cfg.MinimumSubtitleTracks > 0 &&
		subBefore >= cfg.MinimumSubtitleTracks && subKept < cfg.MinimumSubtitleTracks {
		return nil, constraintErr("would drop below subtitle floor (%d kept, floor %d)", subKept, cfg.MinimumSubtitleTracks)
	}
	return dispositions, nil
}

// effectiveLanguage resolves the language the predicates should see: the
// cached analysis overrides a mistagged container value when confident
// enough.
func effectiveLanguage(track media.Track, filter AudioFilterConfig, enrich Enrichment) string {
	if filter.UseLanguageAnalysis {
		if info, ok := enrich.LanguageAnalysis[track.Index]; ok &&
			info.PrimaryLanguage != "" && info.Confidence >= filter.MinAnalysisConfidence {
			return language.Canonical(info.PrimaryLanguage)
		}
	}
	return language.Canonical(track.Language)
}

func audioDisposition(track media.Track, cfg Config, filter AudioFilterConfig, enrich Enrichment) (bool, string) {
	lang := effectiveLanguage(track, filter, enrich)

	if len(filter.Languages) > 0 && !languageMatchesAny(lang, filter.Languages) {
		return false, fmt.Sprintf("language %s not in %v", displayLang(lang), filter.Languages)
	}
	if len(filter.Codecs) > 0 && !media.CodecMatchesAny(track.Codec, filter.Codecs) {
		return false, fmt.Sprintf("codec %s not in %v", track.Codec, filter.Codecs)
	}
	if filter.MinChannels > 0 && track.Channels < filter.MinChannels {
		return false, fmt.Sprintf("%d channels below minimum %d", track.Channels, filter.MinChannels)
	}
	if filter.MaxChannels > 0 && track.Channels > filter.MaxChannels {
		return false, fmt.Sprintf("%d channels above maximum %d", track.Channels, filter.MaxChannels)
	}
	if filter.RemoveCommentary {
		if matched, pattern := titleMatchesAny(track.Title, cfg.CommentaryPatterns); matched {
			return false, fmt.Sprintf("commentary title pattern %q", pattern)
		}
		if c, ok := enrich.Classifications[track.Index]; ok &&
			strings.EqualFold(c.Label, "commentary") && c.Confidence >= commentaryConfidenceFloor {
			return false, fmt.Sprintf("classified commentary (%.2f)", c.Confidence)
		}
	}
	return true, "kept"
}

func subtitleDisposition(track media.Track, filter SubtitleFilterConfig) (bool, string) {
	if track.Forced {
		return true, "forced subtitle"
	}
	if len(filter.Languages) > 0 && !languageMatchesAny(language.Canonical(track.Language), filter.Languages) {
		return false, fmt.Sprintf("language %s not in %v", displayLang(track.Language), filter.Languages)
	}
	if len(filter.Codecs) > 0 && !media.CodecMatchesAny(track.Codec, filter.Codecs) {
		return false, fmt.Sprintf("codec %s not in %v", track.Codec, filter.Codecs)
	}
	return true, "kept"
}

func attachmentDisposition(track media.Track, filter AttachmentFilterConfig) (bool, string) {
	if !filter.RemoveAll {
		return true, "kept"
	}
	if media.CodecMatchesAny(track.Codec, filter.KeepCodecs) {
		return true, "attachment codec allowed"
	}
	return false, "attachments removed by policy"
}

func defaultFlagsPass(file media.FileInfo, cfg Config, flags DefaultFlagsConfig, keptSet map[int]struct{}) []PlannedAction {
	var actions []PlannedAction
	emit := func(track media.Track, wantDefault bool) {
		if track.Default == wantDefault {
			return
		}
		index := track.Index
		actionType := ActionClearDefault
		if wantDefault {
			actionType = ActionSetDefault
		}
		actions = append(actions, PlannedAction{
			Type:       actionType,
			TrackIndex: &index,
			Current:    fmt.Sprintf("%t", track.Default),
			Desired:    fmt.Sprintf("%t", wantDefault),
		})
	}

	videoDefault := -1
	audioDefault := pickAudioDefault(file, cfg, keptSet)
	subtitleDefault := pickSubtitleDefault(file, cfg, flags, keptSet)

	for _, track := range file.Tracks {
		if _, kept := keptSet[track.Index]; !kept {
			continue
		}
		if track.Type == media.TrackVideo && videoDefault < 0 {
			videoDefault = track.Index
		}
	}

	for _, track := range file.Tracks {
		if _, kept := keptSet[track.Index]; !kept {
			continue
		}
		switch track.Type {
		case media.TrackVideo:
			emit(track, track.Index == videoDefault)
		case media.TrackAudio:
			emit(track, track.Index == audioDefault)
		case media.TrackSubtitle:
			emit(track, track.Index == subtitleDefault)
		}
	}
	return actions
}

// pickAudioDefault selects the first kept audio track in the
// highest-preference language present; with no preference list, the first
// kept audio track.
func pickAudioDefault(file media.FileInfo, cfg Config, keptSet map[int]struct{}) int {
	best, bestRank := -1, len(cfg.AudioLanguagePreference)+1
	for _, track := range file.Tracks {
		if track.Type != media.TrackAudio {
			continue
		}
		if _, kept := keptSet[track.Index]; !kept {
			continue
		}
		rank := preferenceRank(track.Language, cfg.AudioLanguagePreference)
		if rank < bestRank {
			best, bestRank = track.Index, rank
		}
	}
	return best
}

func pickSubtitleDefault(file media.FileInfo, cfg Config, flags DefaultFlagsConfig, keptSet map[int]struct{}) int {
	switch flags.Subtitle {
	case SubtitleDefaultForced:
		for _, track := range file.Tracks {
			if track.Type != media.TrackSubtitle || !track.Forced {
				continue
			}
			if _, kept := keptSet[track.Index]; kept {
				return track.Index
			}
		}
	case SubtitleDefaultPreferred:
		best, bestRank := -1, len(cfg.SubtitleLanguagePreference)+1
		for _, track := range file.Tracks {
			if track.Type != media.TrackSubtitle {
				continue
			}
			if _, kept := keptSet[track.Index]; !kept {
				continue
			}
			rank := preferenceRank(track.Language, cfg.SubtitleLanguagePreference)
			if rank < bestRank {
				best, bestRank = track.Index, rank
			}
		}
		return best
	}
	return -1
}

func metadataPass(file media.FileInfo, phase PhaseDefinition, enrich Enrichment, keptSet map[int]struct{}) []PlannedAction {
	var actions []PlannedAction
	for _, track := range file.Tracks {
		if _, kept := keptSet[track.Index]; !kept {
			continue
		}
		index := track.Index

		desiredLang := language.Canonical(track.Language)
		desiredTitle := track.Title
		desiredForced := track.Forced
		if phase.Conditional != nil {
			for _, rule := range phase.Conditional.Rules {
				if !ruleMatches(rule, track, enrich) {
					continue
				}
				if rule.SetTitle != "" {
					desiredTitle = rule.SetTitle
				}
				if rule.SetLanguage != "" {
					desiredLang = language.Canonical(rule.SetLanguage)
				}
				if rule.SetForced != nil {
					desiredForced = *rule.SetForced
				}
			}
		}
		if phase.Transcription != nil && phase.Transcription.Enabled && phase.Transcription.SetLanguageTags {
			if info, ok := enrich.LanguageAnalysis[track.Index]; ok &&
				track.Type == media.TrackAudio &&
				(track.Language == "" || track.Language == "und") &&
				info.PrimaryLanguage != "" &&
				info.Confidence >= phase.Transcription.MinConfidence {
				desiredLang = language.Canonical(info.PrimaryLanguage)
			}
		}

		if desiredTitle != track.Title {
			actions = append(actions, PlannedAction{
				Type:       ActionSetTitle,
				TrackIndex: &index,
				Current:    track.Title,
				Desired:    desiredTitle,
			})
		}
		if desiredLang != track.Language && desiredLang != "" {
			actions = append(actions, PlannedAction{
				Type:       ActionSetLanguage,
				TrackIndex: &index,
				Current:    track.Language,
				Desired:    desiredLang,
			})
		}
		if desiredForced != track.Forced {
			actionType := ActionClearForced
			if desiredForced {
				actionType = ActionSetForced
			}
			actions = append(actions, PlannedAction{
				Type:       actionType,
				TrackIndex: &index,
				Current:    fmt.Sprintf("%t", track.Forced),
				Desired:    fmt.Sprintf("%t", desiredForced),
			})
		}
	}
	return actions
}

func ruleMatches(rule ConditionalRule, track media.Track, enrich Enrichment) bool {
	if rule.TrackType != "" && string(track.Type) != rule.TrackType {
		return false
	}
	values, ok := enrich.PluginMetadata[rule.WhenPlugin]
	if !ok {
		return false
	}
	return values[rule.WhenKey] == rule.WhenEquals
}

// orderPass computes the desired permutation of kept track indices under
// the configured bucket order. Within audio and subtitle buckets, tracks
// sort by language preference rank, then input index; everything else keeps
// input order.
func orderPass(file media.FileInfo, cfg Config, order TrackOrderConfig, kept []int) []int {
	tracksByIndex := make(map[int]media.Track, len(file.Tracks))
	for _, track := range file.Tracks {
		tracksByIndex[track.Index] = track
	}

	mainLang := mainAudioLanguage(file, cfg, kept)
	placed := make(map[int]struct{}, len(kept))
	var desired []int

	appendSorted := func(indices []int, prefs []string) {
		sort.SliceStable(indices, func(i, j int) bool {
			ri := preferenceRank(tracksByIndex[indices[i]].Language, prefs)
			rj := preferenceRank(tracksByIndex[indices[j]].Language, prefs)
			if ri != rj {
				return ri < rj
			}
			return indices[i] < indices[j]
		})
		for _, index := range indices {
			if _, done := placed[index]; done {
				continue
			}
			placed[index] = struct{}{}
			desired = append(desired, index)
		}
	}

	for _, bucket := range order.Order {
		var members []int
		for _, index := range kept {
			if _, done := placed[index]; done {
				continue
			}
			track := tracksByIndex[index]
			if bucketContains(bucket, track, mainLang) {
				members = append(members, index)
			}
		}
		switch bucket {
		case BucketAudio, BucketAudioMain, BucketAudioAlternate:
			appendSorted(members, cfg.AudioLanguagePreference)
		case BucketSubtitle:
			appendSorted(members, cfg.SubtitleLanguagePreference)
		default:
			appendSorted(members, nil)
		}
	}

	for _, index := range kept {
		if _, done := placed[index]; !done {
			desired = append(desired, index)
		}
	}
	return desired
}

func bucketContains(bucket string, track media.Track, mainLang string) bool {
	switch bucket {
	case BucketVideo:
		return track.Type == media.TrackVideo
	case BucketAudio:
		return track.Type == media.TrackAudio
	case BucketAudioMain:
		return track.Type == media.TrackAudio && mainLang != "" &&
			language.Matches(track.Language, mainLang)
	case BucketAudioAlternate:
		return track.Type == media.TrackAudio &&
			(mainLang == "" || !language.Matches(track.Language, mainLang))
	case BucketSubtitle:
		return track.Type == media.TrackSubtitle
	case BucketAttachment:
		return track.Type == media.TrackAttachment
	case BucketOther:
		return track.Type == media.TrackOther
	}
	return false
}

// mainAudioLanguage is the highest-preference language present among kept
// audio tracks.
func mainAudioLanguage(file media.FileInfo, cfg Config, kept []int) string {
	keptSet := make(map[int]struct{}, len(kept))
	for _, index := range kept {
		keptSet[index] = struct{}{}
	}
	bestLang, bestRank := "", len(cfg.AudioLanguagePreference)+1
	for _, track := range file.Tracks {
		if track.Type != media.TrackAudio {
			continue
		}
		if _, ok := keptSet[track.Index]; !ok {
			continue
		}
		rank := preferenceRank(track.Language, cfg.AudioLanguagePreference)
		if rank < bestRank {
			bestLang, bestRank = language.Canonical(track.Language), rank
		}
	}
	return bestLang
}

// preferenceRank returns the position of lang in prefs, or one past the end
// when absent. An empty preference list ranks every language equally.
func preferenceRank(lang string, prefs []string) int {
	for i, pref := range prefs {
		if language.Matches(lang, pref) {
			return i
		}
	}
	return len(prefs)
}

func languageMatchesAny(lang string, candidates []string) bool {
	for _, candidate := range candidates {
		if language.Matches(lang, candidate) {
			return true
		}
	}
	return false
}

func titleMatchesAny(title string, patterns []string) (bool, string) {
	lowered := strings.ToLower(title)
	for _, pattern := range patterns {
		if pattern == "" {
			continue
		}
		if strings.Contains(lowered, strings.ToLower(pattern)) {
			return true, pattern
		}
	}
	return false, ""
}

func displayLang(lang string) string {
	if lang == "" {
		return "(untagged)"
	}
	return lang
}

func equalOrder(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
