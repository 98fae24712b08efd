package policy_test

import (
	"errors"
	"testing"

	"vpo/internal/media"
	"vpo/internal/policy"
)

func threeAudioFile() media.FileInfo {
	return media.FileInfo{
		Path:      "/library/movie.mkv",
		Container: "matroska",
		Tracks: []media.Track{
			{Index: 0, Type: media.TrackVideo, Codec: "hevc", Width: 1920, Height: 1080},
			{Index: 1, Type: media.TrackAudio, Codec: "eac3", Language: "jpn", Default: true, Channels: 6},
			{Index: 2, Type: media.TrackAudio, Codec: "eac3", Language: "eng", Channels: 6},
			{Index: 3, Type: media.TrackAudio, Codec: "aac", Language: "fra", Channels: 2},
		},
	}
}

func TestReorderAndDefaultByPreference(t *testing.T) {
	cfg := policy.Config{AudioLanguagePreference: []string{"eng", "jpn", "fra"}}
	phase := policy.PhaseDefinition{
		Name:         "normalize",
		DefaultFlags: &policy.DefaultFlagsConfig{},
		TrackOrder:   &policy.TrackOrderConfig{Order: []string{"video", "audio_main", "audio_alternate"}},
	}

	plan, err := policy.Evaluate(threeAudioFile(), cfg, phase, policy.Enrichment{})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}

	var clears, sets []int
	var reorder *policy.PlannedAction
	for i, action := range plan.Actions {
		action := action
		switch action.Type {
		case policy.ActionClearDefault:
			clears = append(clears, *action.TrackIndex)
		case policy.ActionSetDefault:
			sets = append(sets, *action.TrackIndex)
			if len(clears) == 0 {
				t.Error("SET_DEFAULT emitted before CLEAR_DEFAULT")
			}
		case policy.ActionReorder:
			reorder = &plan.Actions[i]
		}
	}

	if len(clears) != 1 || clears[0] != 1 {
		t.Errorf("clears = %v, want [1] (jpn loses default)", clears)
	}
	if len(sets) != 1 || sets[0] != 2 {
		t.Errorf("sets = %v, want [2] (eng gains default)", sets)
	}
	if reorder == nil {
		t.Fatal("no REORDER action emitted")
	}
	if reorder.TrackIndex != nil {
		t.Error("REORDER must be file-level")
	}
	if reorder.Current != "0,1,2,3" || reorder.Desired != "0,2,1,3" {
		t.Errorf("reorder %q -> %q, want 0,1,2,3 -> 0,2,1,3", reorder.Current, reorder.Desired)
	}
	if !plan.RequiresRemux {
		t.Error("reorder must require a remux")
	}
	if plan.TracksKept != 4 || plan.TracksRemoved != 0 {
		t.Errorf("dispositions kept=%d removed=%d", plan.TracksKept, plan.TracksRemoved)
	}
}

func TestAudioFloorRaisesConstraint(t *testing.T) {
	file := media.FileInfo{
		Path:      "/library/foreign.mkv",
		Container: "matroska",
		Tracks: []media.Track{
			{Index: 0, Type: media.TrackVideo, Codec: "h264"},
			{Index: 1, Type: media.TrackAudio, Codec: "aac", Language: "jpn"},
			{Index: 2, Type: media.TrackAudio, Codec: "aac", Language: "fra"},
		},
	}
	phase := policy.PhaseDefinition{
		Name:        "filter",
		AudioFilter: &policy.AudioFilterConfig{Languages: []string{"eng"}},
	}

	_, err := policy.Evaluate(file, policy.Config{}, phase, policy.Enrichment{})
	var policyErr *policy.PolicyError
	if !errors.As(err, &policyErr) {
		t.Fatalf("err = %v, want *PolicyError", err)
	}
	if policyErr.Reason == "" {
		t.Error("constraint reason must be populated")
	}
}

func TestFilterRemovesCommentaryAndKeepsForced(t *testing.T) {
	file := media.FileInfo{
		Path:      "/library/movie.mkv",
		Container: "matroska",
		Tracks: []media.Track{
			{Index: 0, Type: media.TrackVideo, Codec: "hevc"},
			{Index: 1, Type: media.TrackAudio, Codec: "eac3", Language: "eng"},
			{Index: 2, Type: media.TrackAudio, Codec: "aac", Language: "eng", Title: "Director's Commentary"},
			{Index: 3, Type: media.TrackSubtitle, Codec: "subrip", Language: "deu", Forced: true},
			{Index: 4, Type: media.TrackSubtitle, Codec: "subrip", Language: "deu"},
		},
	}
	cfg := policy.Config{CommentaryPatterns: []string{"commentary"}}
	phase := policy.PhaseDefinition{
		Name:           "filter",
		AudioFilter:    &policy.AudioFilterConfig{Languages: []string{"eng"}, RemoveCommentary: true},
		SubtitleFilter: &policy.SubtitleFilterConfig{Languages: []string{"eng"}},
	}

	plan, err := policy.Evaluate(file, cfg, phase, policy.Enrichment{})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}

	want := map[int]bool{0: true, 1: true, 2: false, 3: true, 4: false}
	for _, d := range plan.Dispositions {
		if d.Kept != want[d.Index] {
			t.Errorf("track %d kept=%v (%s), want %v", d.Index, d.Kept, d.Reason, want[d.Index])
		}
	}
	if plan.TracksKept+plan.TracksRemoved != len(file.Tracks) {
		t.Errorf("kept %d + removed %d != %d tracks", plan.TracksKept, plan.TracksRemoved, len(file.Tracks))
	}
	if !plan.RequiresRemux {
		t.Error("removals must require a remux")
	}
}

func TestLanguageAnalysisOverridesMistag(t *testing.T) {
	file := media.FileInfo{
		Path:      "/library/mistagged.mkv",
		Container: "matroska",
		Tracks: []media.Track{
			{Index: 0, Type: media.TrackVideo, Codec: "hevc"},
			// Tagged eng but the analysis says it is actually jpn.
			{Index: 1, Type: media.TrackAudio, Codec: "aac", Language: "eng"},
			{Index: 2, Type: media.TrackAudio, Codec: "aac", Language: "eng"},
		},
	}
	phase := policy.PhaseDefinition{
		Name: "filter",
		AudioFilter: &policy.AudioFilterConfig{
			Languages:             []string{"eng"},
			UseLanguageAnalysis:   true,
			MinAnalysisConfidence: 0.8,
		},
	}
	enrich := policy.Enrichment{
		LanguageAnalysis: map[int]policy.LanguageInfo{
			1: {PrimaryLanguage: "jpn", Confidence: 0.95},
			2: {PrimaryLanguage: "jpn", Confidence: 0.3}, // below threshold, tag wins
		},
	}

	plan, err := policy.Evaluate(file, policy.Config{}, phase, enrich)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	for _, d := range plan.Dispositions {
		switch d.Index {
		case 1:
			if d.Kept {
				t.Error("confident analysis should override the eng tag and remove track 1")
			}
		case 2:
			if !d.Kept {
				t.Error("low-confidence analysis must not override the tag on track 2")
			}
		}
	}
}

func TestContainerChange(t *testing.T) {
	file := media.FileInfo{
		Path:      "/library/movie.avi",
		Container: "avi",
		Tracks: []media.Track{
			{Index: 0, Type: media.TrackVideo, Codec: "h264"},
			{Index: 1, Type: media.TrackAudio, Codec: "aac", Language: "eng"},
		},
	}
	phase := policy.PhaseDefinition{
		Name:      "containerize",
		Container: &policy.ContainerConfig{Target: "matroska"},
	}

	plan, err := policy.Evaluate(file, policy.Config{}, phase, policy.Enrichment{})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if plan.ContainerChange == nil || plan.ContainerChange.Target != "matroska" {
		t.Fatalf("container change = %+v", plan.ContainerChange)
	}
	if !plan.RequiresRemux {
		t.Error("container change must require a remux")
	}

	// Already in the target container: no change requested.
	file.Container = "matroska"
	plan, err = policy.Evaluate(file, policy.Config{}, phase, policy.Enrichment{})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if plan.ContainerChange != nil || len(plan.Actions) != 0 {
		t.Errorf("compliant container produced %+v", plan)
	}
}

func TestMetadataNormalizesLanguage(t *testing.T) {
	file := media.FileInfo{
		Path:      "/library/movie.mkv",
		Container: "matroska",
		Tracks: []media.Track{
			{Index: 0, Type: media.TrackVideo, Codec: "hevc"},
			{Index: 1, Type: media.TrackAudio, Codec: "aac", Language: "fre"},
			{Index: 2, Type: media.TrackAudio, Codec: "aac", Language: "tlh"},
		},
	}
	plan, err := policy.Evaluate(file, policy.Config{}, policy.PhaseDefinition{Name: "tidy"}, policy.Enrichment{})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}

	var langSets []policy.PlannedAction
	for _, action := range plan.Actions {
		if action.Type == policy.ActionSetLanguage {
			langSets = append(langSets, action)
		}
	}
	// fre canonicalizes to fra; tlh is unrecognized and passes through
	// unchanged, so no action for it.
	if len(langSets) != 1 {
		t.Fatalf("language actions = %+v, want exactly one", langSets)
	}
	if *langSets[0].TrackIndex != 1 || langSets[0].Desired != "fra" {
		t.Errorf("language action = %+v", langSets[0])
	}
}

func TestEvaluateIsDeterministic(t *testing.T) {
	cfg := policy.Config{AudioLanguagePreference: []string{"eng", "jpn"}}
	phase := policy.PhaseDefinition{
		Name:         "normalize",
		DefaultFlags: &policy.DefaultFlagsConfig{},
		TrackOrder:   &policy.TrackOrderConfig{Order: []string{"video", "audio"}},
		AudioFilter:  &policy.AudioFilterConfig{Languages: []string{"eng", "jpn", "fra"}},
	}

	first, err := policy.Evaluate(threeAudioFile(), cfg, phase, policy.Enrichment{})
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	firstJSON, err := first.MarshalActions()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	for i := 0; i < 10; i++ {
		again, err := policy.Evaluate(threeAudioFile(), cfg, phase, policy.Enrichment{})
		if err != nil {
			t.Fatalf("repeat %d: %v", i, err)
		}
		againJSON, err := again.MarshalActions()
		if err != nil {
			t.Fatalf("marshal %d: %v", i, err)
		}
		if againJSON != firstJSON {
			t.Fatalf("evaluation %d differed:\n%s\n%s", i, firstJSON, againJSON)
		}
	}
}

func TestConditionalRuleFromPluginMetadata(t *testing.T) {
	file := media.FileInfo{
		Path:      "/library/anime.mkv",
		Container: "matroska",
		Tracks: []media.Track{
			{Index: 0, Type: media.TrackVideo, Codec: "hevc"},
			{Index: 1, Type: media.TrackAudio, Codec: "aac", Language: "jpn", Title: "Audio 1"},
		},
	}
	phase := policy.PhaseDefinition{
		Name: "enrich",
		Conditional: &policy.ConditionalConfig{Rules: []policy.ConditionalRule{{
			WhenPlugin: "anidb",
			WhenKey:    "media_kind",
			WhenEquals: "anime",
			TrackType:  "audio",
			SetTitle:   "Original Japanese",
		}}},
	}
	enrich := policy.Enrichment{
		PluginMetadata: map[string]map[string]string{
			"anidb": {"media_kind": "anime"},
		},
	}

	plan, err := policy.Evaluate(file, policy.Config{}, phase, enrich)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	found := false
	for _, action := range plan.Actions {
		if action.Type == policy.ActionSetTitle && *action.TrackIndex == 1 && action.Desired == "Original Japanese" {
			found = true
		}
	}
	if !found {
		t.Errorf("conditional title not applied: %+v", plan.Actions)
	}
}

func TestConditionalRuleSetsForcedFlag(t *testing.T) {
	file := media.FileInfo{
		Path:      "/library/movie.mkv",
		Container: "matroska",
		Tracks: []media.Track{
			{Index: 0, Type: media.TrackVideo, Codec: "hevc"},
			{Index: 1, Type: media.TrackSubtitle, Codec: "subrip", Language: "eng"},
			{Index: 2, Type: media.TrackSubtitle, Codec: "subrip", Language: "eng", Forced: true},
		},
	}
	forced := true
	cleared := false
	phase := policy.PhaseDefinition{
		Name: "signs",
		Conditional: &policy.ConditionalConfig{Rules: []policy.ConditionalRule{
			{
				WhenPlugin: "classifier",
				WhenKey:    "subtitle_kind",
				WhenEquals: "signs",
				TrackType:  "subtitle",
				SetForced:  &forced,
			},
			{
				WhenPlugin: "classifier",
				WhenKey:    "full_dialogue",
				WhenEquals: "yes",
				TrackType:  "subtitle",
				SetForced:  &cleared,
			},
		}},
	}

	plan, err := policy.Evaluate(file, policy.Config{}, phase, policy.Enrichment{
		PluginMetadata: map[string]map[string]string{
			"classifier": {"subtitle_kind": "signs"},
		},
	})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	setForced := 0
	for _, action := range plan.Actions {
		if action.Type == policy.ActionSetForced {
			setForced++
			if *action.TrackIndex != 1 {
				t.Errorf("set_forced on track %d, want 1", *action.TrackIndex)
			}
		}
	}
	// Track 2 is already forced, so only track 1 needs the flag.
	if setForced != 1 {
		t.Errorf("set_forced actions = %d, want 1", setForced)
	}

	plan, err = policy.Evaluate(file, policy.Config{}, phase, policy.Enrichment{
		PluginMetadata: map[string]map[string]string{
			"classifier": {"full_dialogue": "yes"},
		},
	})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	clearForced := 0
	for _, action := range plan.Actions {
		if action.Type == policy.ActionClearForced {
			clearForced++
			if *action.TrackIndex != 2 {
				t.Errorf("clear_forced on track %d, want 2", *action.TrackIndex)
			}
		}
	}
	if clearForced != 1 {
		t.Errorf("clear_forced actions = %d, want 1", clearForced)
	}
}
