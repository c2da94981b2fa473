package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/ofim/contexto/internal/assembly"
	"github.com/ofim/contexto/internal/config"
	"github.com/ofim/contexto/internal/session"
	"github.com/ofim/contexto/pkg/types"
)

// defaultSessionSpan is assumed when `complete` is invoked without
// --started: the session is treated as having run this long.
const defaultSessionSpan = 30 * time.Minute

// assembleOutput is the JSON shape printed to stdout by assemble and
// council. Components is keyed by layer name.
type assembleOutput struct {
	Prompt     string            `json:"prompt"`
	Components map[string]string `json:"components"`
	Metadata   metadataOutput    `json:"metadata"`
}

type metadataOutput struct {
	TotalTokens          int     `json:"total_tokens"`
	Truncated            bool    `json:"truncated"`
	MemoriesIncluded     int     `json:"memories_included"`
	DriftScore           float64 `json:"drift_score"`
	TrustLevel           string  `json:"trust_level"`
	EntropyLevel         float64 `json:"entropy_level"`
	AssemblyMs           int64   `json:"assembly_ms"`
	SoulIntegrityFailure bool    `json:"soul_integrity_failure"`
	FallbackUsed         bool    `json:"fallback_used"`
}

func newAssembleCmd(getCfg func() *config.Config) *cobra.Command {
	var (
		personaSlug  string
		userID       string
		sessionID    string
		query        string
		prevResponse string
		maxTokens    int
		noSetting    bool
		noAtmosphere bool
		exchange     int
	)

	cmd := &cobra.Command{
		Use:   "assemble",
		Short: "Assemble a system prompt for one persona and user",
		RunE: func(cmd *cobra.Command, args []string) error {
			uid, err := uuid.Parse(userID)
			if err != nil {
				return fmt.Errorf("--user: %w", err)
			}
			sid, err := parseOrNewSession(sessionID)
			if err != nil {
				return fmt.Errorf("--session: %w", err)
			}

			a, err := newApp(cmd.Context(), getCfg())
			if err != nil {
				return err
			}
			defer a.close()

			opts := assembly.DefaultOptions()
			opts.MaxTokens = maxTokens
			opts.IncludeSetting = !noSetting
			opts.IncludePynchon = !noAtmosphere
			opts.ExchangeCount = exchange

			cc, err := a.assembler.Assemble(cmd.Context(), assembly.Request{
				PersonaSlug:  personaSlug,
				UserID:       uid,
				SessionID:    sid,
				Query:        query,
				PrevResponse: prevResponse,
				Opts:         opts,
			})
			if err != nil {
				return err
			}
			return printContext(cc)
		},
	}

	cmd.Flags().StringVar(&personaSlug, "persona", "", "persona slug (required)")
	cmd.Flags().StringVar(&userID, "user", "", "user UUID (required)")
	cmd.Flags().StringVar(&sessionID, "session", "", "session UUID (default: new)")
	cmd.Flags().StringVar(&query, "query", "", "the user's current message")
	cmd.Flags().StringVar(&prevResponse, "prev-response", "", "persona's previous response, enables drift checking")
	cmd.Flags().IntVar(&maxTokens, "max-tokens", 0, "override the configured token budget")
	cmd.Flags().BoolVar(&noSetting, "no-setting", false, "omit the setting layer")
	cmd.Flags().BoolVar(&noAtmosphere, "no-atmosphere", false, "omit the atmospheric layers")
	cmd.Flags().IntVar(&exchange, "exchange", 0, "how many exchanges deep the session is")
	_ = cmd.MarkFlagRequired("persona")
	_ = cmd.MarkFlagRequired("user")

	return cmd
}

func newCouncilCmd(getCfg func() *config.Config) *cobra.Command {
	var (
		councilType  string
		topic        string
		participants []string
		personaSlug  string
		userID       string
		sessionID    string
		phase        string
	)

	cmd := &cobra.Command{
		Use:   "council",
		Short: "Assemble a council prompt for one persona at the table",
		RunE: func(cmd *cobra.Command, args []string) error {
			var uid uuid.UUID
			if userID != "" {
				var err error
				if uid, err = uuid.Parse(userID); err != nil {
					return fmt.Errorf("--user: %w", err)
				}
			}
			sid, err := parseOrNewSession(sessionID)
			if err != nil {
				return fmt.Errorf("--session: %w", err)
			}

			a, err := newApp(cmd.Context(), getCfg())
			if err != nil {
				return err
			}
			defer a.close()

			cc, err := a.assembler.AssembleCouncil(cmd.Context(), assembly.CouncilRequest{
				CouncilType:  councilType,
				Topic:        topic,
				Participants: participants,
				PersonaSlug:  personaSlug,
				UserID:       uid,
				SessionID:    sid,
				CurrentPhase: phase,
			})
			if err != nil {
				return err
			}
			return printContext(cc)
		},
	}

	cmd.Flags().StringVar(&councilType, "type", "council", "council type: council, debate, symposium, tribunal, vigil, toast, intervention")
	cmd.Flags().StringVar(&topic, "topic", "", "what the table is discussing (required)")
	cmd.Flags().StringSliceVar(&participants, "participants", nil, "slugs seated at the table")
	cmd.Flags().StringVar(&personaSlug, "persona", "", "perspective persona slug (required)")
	cmd.Flags().StringVar(&userID, "user", "", "user UUID, adds the user-relationship note")
	cmd.Flags().StringVar(&sessionID, "session", "", "session UUID (default: new)")
	cmd.Flags().StringVar(&phase, "phase", "", "current council phase prose")
	_ = cmd.MarkFlagRequired("topic")
	_ = cmd.MarkFlagRequired("persona")

	return cmd
}

func newCompleteCmd(getCfg func() *config.Config) *cobra.Command {
	var (
		personaSlug  string
		userID       string
		sessionID    string
		messagesPath string
		started      string
		ended        string
	)

	cmd := &cobra.Command{
		Use:   "complete",
		Short: "Run session completion over a transcript",
		Long: `complete reads a transcript (a JSON array of {"role","content"} messages),
settles the session into the persona's memory and relationship state, and
prints what changed.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			uid, err := uuid.Parse(userID)
			if err != nil {
				return fmt.Errorf("--user: %w", err)
			}
			sid, err := uuid.Parse(sessionID)
			if err != nil {
				return fmt.Errorf("--session: %w", err)
			}
			messages, err := readTranscript(messagesPath)
			if err != nil {
				return err
			}

			endedAt := time.Now()
			if ended != "" {
				if endedAt, err = time.Parse(time.RFC3339, ended); err != nil {
					return fmt.Errorf("--ended: %w", err)
				}
			}
			startedAt := endedAt.Add(-defaultSessionSpan)
			if started != "" {
				if startedAt, err = time.Parse(time.RFC3339, started); err != nil {
					return fmt.Errorf("--started: %w", err)
				}
			}

			a, err := newApp(cmd.Context(), getCfg())
			if err != nil {
				return err
			}
			defer a.close()

			p, err := a.personas.GetBySlug(cmd.Context(), personaSlug)
			if err != nil {
				return err
			}
			if p == nil {
				return fmt.Errorf("unknown persona %q", personaSlug)
			}

			res, err := a.completer.Complete(cmd.Context(), session.Request{
				SessionID:   sid,
				UserID:      uid,
				PersonaID:   p.ID,
				PersonaName: p.Name,
				Messages:    messages,
				StartedAt:   startedAt,
				EndedAt:     endedAt,
			})
			if err != nil {
				return err
			}
			return printJSON(completionOutput(res))
		},
	}

	cmd.Flags().StringVar(&personaSlug, "persona", "", "persona slug (required)")
	cmd.Flags().StringVar(&userID, "user", "", "user UUID (required)")
	cmd.Flags().StringVar(&sessionID, "session", "", "session UUID (required)")
	cmd.Flags().StringVar(&messagesPath, "messages", "", "path to the transcript JSON file (required)")
	cmd.Flags().StringVar(&started, "started", "", "session start, RFC3339")
	cmd.Flags().StringVar(&ended, "ended", "", "session end, RFC3339 (default: now)")
	_ = cmd.MarkFlagRequired("persona")
	_ = cmd.MarkFlagRequired("user")
	_ = cmd.MarkFlagRequired("session")
	_ = cmd.MarkFlagRequired("messages")

	return cmd
}

func completionOutput(res session.Result) map[string]any {
	out := map[string]any{
		"memories_stored":    res.MemoriesStored,
		"memories_consigned": res.MemoriesConsignedToPreterite,
		"settings_extracted": res.SettingsExtracted,
		"session_quality":    res.SessionQuality,
		"entropy_state":      res.EntropyState,
		"arc_phase":          res.ArcPhase,
	}
	if res.Skipped != "" {
		out["skipped"] = res.Skipped
	}
	if res.Relationship != nil {
		out["trust_level"] = string(res.Relationship.TrustLevel)
		out["familiarity"] = res.Relationship.FamiliarityScore
		out["interaction_count"] = res.Relationship.InteractionCount
	}
	return out
}

func readTranscript(path string) ([]types.Message, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read transcript: %w", err)
	}
	var messages []types.Message
	if err := json.Unmarshal(raw, &messages); err != nil {
		return nil, fmt.Errorf("parse transcript %s: %w", path, err)
	}
	return messages, nil
}

func parseOrNewSession(s string) (uuid.UUID, error) {
	if s == "" {
		return uuid.New(), nil
	}
	return uuid.Parse(s)
}

func printContext(cc *assembly.Context) error {
	components := make(map[string]string, len(cc.Components))
	for layer, text := range cc.Components {
		components[string(layer)] = text
	}
	return printJSON(assembleOutput{
		Prompt:     cc.Prompt,
		Components: components,
		Metadata: metadataOutput{
			TotalTokens:          cc.Metadata.TotalTokens,
			Truncated:            cc.Metadata.Truncated,
			MemoriesIncluded:     cc.Metadata.MemoriesIncluded,
			DriftScore:           cc.Metadata.DriftScore,
			TrustLevel:           string(cc.Metadata.TrustLevel),
			EntropyLevel:         cc.Metadata.EntropyLevel,
			AssemblyMs:           cc.Metadata.AssemblyDuration.Milliseconds(),
			SoulIntegrityFailure: cc.Metadata.SoulIntegrityFailure,
			FallbackUsed:         cc.Metadata.FallbackUsed,
		},
	})
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}
