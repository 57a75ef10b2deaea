package live

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/MrWong99/vocalbooth/internal/engine"
	"github.com/MrWong99/vocalbooth/internal/observe"
	"github.com/MrWong99/vocalbooth/internal/params"
)

// Client actions.
const (
	ActionSetVoiceEffect  = "set_voice_effect"
	ActionSetVoiceEffects = "set_voice_effects"
	ActionSetVoicePreset  = "set_voice_preset"
	ActionGetState        = "get_state"
	ActionListPresets     = "list_presets"
	ActionListSongs       = "list_songs"
	ActionLoadSong        = "load_song"
	ActionStopSession     = "stop_session"
)

// errNoSessions is returned for session actions when the server has no
// session control.
var errNoSessions = errors.New("session control is not available")

// request is a client message.
type request struct {
	Action  string          `json:"action"`
	Payload json.RawMessage `json:"payload"`
}

type effectPayload struct {
	Effect string `json:"effect"`
	Value  any    `json:"value"`
}

type presetPayload struct {
	Preset string `json:"preset"`
}

type effectReply struct {
	Type   string `json:"type"`
	Effect string `json:"effect"`
	Value  any    `json:"value"`
}

type effectsReply struct {
	Type     string         `json:"type"`
	Effects  map[string]any `json:"effects"`
	Rejected []string       `json:"rejected,omitempty"`
}

type presetReply struct {
	Type    string         `json:"type"`
	Preset  string         `json:"preset"`
	Effects map[string]any `json:"effects"`
}

type presetsReply struct {
	Type    string   `json:"type"`
	Presets []string `json:"presets"`
}

type songPayload struct {
	Song string `json:"song"`
}

type songsReply struct {
	Type  string   `json:"type"`
	Songs []string `json:"songs"`
}

type songLoadedReply struct {
	Type string `json:"type"`
	Song string `json:"song"`
}

type sessionStoppedReply struct {
	Type      string `json:"type"`
	Recording string `json:"recording,omitempty"`
}

type stateReply struct {
	Type     string           `json:"type"`
	Snapshot *engine.Snapshot `json:"snapshot"`
	Effects  map[string]any   `json:"effects"`
}

type errorReply struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// decodeRequest parses a client message. Messages that were JSON-encoded
// twice arrive as a JSON string and are unwrapped once.
func decodeRequest(data []byte) (request, error) {
	var req request
	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, `"`) {
		var inner string
		if err := json.Unmarshal(data, &inner); err != nil {
			return req, fmt.Errorf("invalid JSON: %w", err)
		}
		data = []byte(inner)
	}
	if err := json.Unmarshal(data, &req); err != nil {
		return req, fmt.Errorf("invalid JSON: %w", err)
	}
	if req.Action == "" {
		return req, errors.New("missing action")
	}
	return req, nil
}

// dispatch handles one client message and returns the encoded reply.
func (s *Server) dispatch(ctx context.Context, data []byte) []byte {
	req, err := decodeRequest(data)
	if err != nil {
		return errorMessage(err)
	}

	ctx, span := observe.StartSpan(ctx, "live."+req.Action)
	reply, err := s.handle(ctx, req)
	observe.EndSpan(span, err)
	if err != nil {
		observe.Logger(ctx).Debug("live: request failed", "action", req.Action, "err", err)
		return errorMessage(err)
	}
	out, err := json.Marshal(reply)
	if err != nil {
		return errorMessage(err)
	}
	return out
}

func (s *Server) handle(ctx context.Context, req request) (any, error) {
	switch req.Action {
	case ActionSetVoiceEffect:
		var p effectPayload
		if err := decodePayload(req.Payload, &p); err != nil {
			return nil, err
		}
		if p.Effect == "" {
			return nil, errors.New("missing effect")
		}
		if errs := s.store.ApplyValues(ctx, paramSource, map[string]any{p.Effect: p.Value}); len(errs) > 0 {
			return nil, errs[0]
		}
		return effectReply{Type: "voice_effect_updated", Effect: p.Effect, Value: p.Value}, nil

	case ActionSetVoiceEffects:
		var kv map[string]any
		if err := decodePayload(req.Payload, &kv); err != nil {
			return nil, err
		}
		if len(kv) == 0 {
			return nil, errors.New("no effects given")
		}
		errs := s.store.ApplyValues(ctx, paramSource, kv)
		reply := effectsReply{Type: "voice_effects_updated", Effects: s.store.Load().Map()}
		for _, err := range errs {
			reply.Rejected = append(reply.Rejected, err.Error())
		}
		return reply, nil

	case ActionSetVoicePreset:
		var p presetPayload
		if err := decodePayload(req.Payload, &p); err != nil {
			return nil, err
		}
		e, err := s.store.ApplyPreset(ctx, paramSource, p.Preset)
		if err != nil {
			return nil, err
		}
		return presetReply{Type: "voice_preset_applied", Preset: p.Preset, Effects: e.Map()}, nil

	case ActionGetState:
		msg, err := s.stateMessage()
		if err != nil {
			return nil, err
		}
		return json.RawMessage(msg), nil

	case ActionListPresets:
		names := make([]string, len(params.Presets))
		for i, p := range params.Presets {
			names[i] = p.Name
		}
		return presetsReply{Type: "presets", Presets: names}, nil

	case ActionListSongs:
		if s.sessions == nil {
			return nil, errNoSessions
		}
		names, err := s.sessions.ListSongs()
		if err != nil {
			return nil, err
		}
		return songsReply{Type: "songs_list", Songs: names}, nil

	case ActionLoadSong:
		if s.sessions == nil {
			return nil, errNoSessions
		}
		var p songPayload
		if err := decodePayload(req.Payload, &p); err != nil {
			return nil, err
		}
		if strings.TrimSpace(p.Song) == "" {
			return nil, errors.New("missing song")
		}
		name, err := s.sessions.LoadSong(ctx, p.Song)
		if err != nil {
			return nil, err
		}
		return songLoadedReply{Type: "song_loaded", Song: name}, nil

	case ActionStopSession:
		if s.sessions == nil {
			return nil, errNoSessions
		}
		path, err := s.sessions.StopSession(ctx)
		if err != nil {
			return nil, err
		}
		return sessionStoppedReply{Type: "session_stopped", Recording: path}, nil
	}
	return nil, fmt.Errorf("unknown action %q", req.Action)
}

// songsMessage encodes the song list, or an error when listing fails.
func (s *Server) songsMessage(ctx context.Context) []byte {
	reply, err := s.handle(ctx, request{Action: ActionListSongs})
	if err != nil {
		return errorMessage(err)
	}
	out, err := json.Marshal(reply)
	if err != nil {
		return errorMessage(err)
	}
	return out
}

func decodePayload(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return errors.New("missing payload")
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("invalid payload: %w", err)
	}
	return nil
}

func errorMessage(err error) []byte {
	out, _ := json.Marshal(errorReply{Type: "error", Message: err.Error()})
	return out
}
