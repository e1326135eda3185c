package main

import (
	"fmt"
	"strings"

	"fateloom/internal/session"
	"fateloom/internal/state"
)

const systemInstruction = `You are the game master of a text role-playing game.
Reply with a single JSON object and nothing else. No markdown fences.`

const narrativeSchema = `Reply with JSON:
{
  "story": "2-4 paragraphs of second-person narration",
  "options": [{"text": "...", "type": "normal|risk|focus", "checkStat": "strength|wisdom|charisma|luck", "difficulty": "easy|normal|hard|extreme", "timeAdvance": 1}],
  "newNPC": null or {"id": "snake_case_id", "name": "...", "role": "...", "desc": "...", "faction": 0, "personality": "...", "secret": "..."},
  "newRelations": [{"from": "id", "to": "id", "type": "...", "revealed": false}],
  "revealedRelations": [{"from": "id", "to": "id"}],
  "npcStatusChanges": [{"id": "...", "newStatus": "active|injured|missing|imprisoned|betrayed|dead", "reason": "..."}],
  "fateEvent": null or {"name": "...", "points": 1},
  "doom": null or {"amount": 5, "reason": "..."},
  "reputation": [{"faction": 0, "delta": 5}]
}
Offer 3 or 4 options. Never reuse an existing NPC id for a new NPC.`

// defaultPrompts renders the CLI's prompts.
type defaultPrompts struct{}

var _ session.PromptBuilder = defaultPrompts{}

func (defaultPrompts) Worlds() session.Prompt {
	return session.Prompt{
		System: systemInstruction,
		User: `Invent three contrasting settings for a new campaign.
Reply with JSON:
{"worlds": [{"name": "...", "theme": "...", "desc": "one paragraph", "conflict": "...",
  "factions": [{"name": "...", "desc": "...", "stance": "..."}]}]}
Give each world two to four factions.`,
	}
}

func (defaultPrompts) Opening(v session.View) session.Prompt {
	var b strings.Builder
	writeContext(&b, v)
	b.WriteString("\nOpen the campaign with the player's arrival.\n\n")
	b.WriteString(narrativeSchema)
	return session.Prompt{System: systemInstruction, User: b.String()}
}

func (defaultPrompts) NextScene(v session.View, action string, check *session.CheckResult) session.Prompt {
	var b strings.Builder
	writeContext(&b, v)
	fmt.Fprintf(&b, "\nThe player chose: %s\n", action)
	if check != nil {
		outcome := "failed"
		if check.Success {
			outcome = "succeeded"
		}
		fmt.Fprintf(&b, "A %s check (%s) rolled %d against %d and %s.\n",
			check.Stat, check.Difficulty, check.Roll, check.Threshold, outcome)
	}
	if v.DoomEventDue {
		fmt.Fprintf(&b, "Doom has reached level %d. Make the world visibly worse in this scene.\n", v.DoomLevel)
	}
	b.WriteString("\nContinue the story.\n\n")
	b.WriteString(narrativeSchema)
	return session.Prompt{System: systemInstruction, User: b.String()}
}

func (defaultPrompts) Compress(v session.View, log []state.LogEntry) session.Prompt {
	var b strings.Builder
	if v.CompressedHistory != "" {
		fmt.Fprintf(&b, "Earlier summary:\n%s\n\n", v.CompressedHistory)
	}
	b.WriteString("Events since:\n")
	for _, e := range log {
		fmt.Fprintf(&b, "[%s] %s\n", e.Role, e.Text)
	}
	b.WriteString(`
Summarize everything above in one paragraph that keeps names, promises and unresolved threats.
Reply with JSON: {"summary": "..."}`)
	return session.Prompt{System: systemInstruction, User: b.String()}
}

func writeContext(b *strings.Builder, v session.View) {
	fmt.Fprintf(b, "World: %s\n", v.WorldName)
	if desc, ok := v.World["desc"].(string); ok && desc != "" {
		fmt.Fprintf(b, "%s\n", desc)
	}
	fmt.Fprintf(b, "Date: %s, %s\n", v.Calendar.Label(), v.Calendar.TimeLabel())
	fmt.Fprintf(b, "Doom: %d/100 (level %d)\n", v.DoomValue, v.DoomLevel)

	p := v.Player
	fmt.Fprintf(b, "Player: %s", p.Name)
	if p.Role != "" {
		fmt.Fprintf(b, ", %s", p.Role)
	}
	fmt.Fprintf(b, " (strength %d, wisdom %d, charisma %d, luck %d)\n",
		p.Stat("strength"), p.Stat("wisdom"), p.Stat("charisma"), p.Stat("luck"))
	if p.Background != "" {
		fmt.Fprintf(b, "Background: %s\n", p.Background)
	}
	if len(p.Traits) > 0 {
		fmt.Fprintf(b, "Personality: %s\n", strings.Join(p.Traits, ", "))
	}
	if w := v.TraitWeights; len(p.Traits) > 0 && !w.Neutral() {
		fmt.Fprintf(b, "Weigh the offered options by the player's personality: risk %.1f, focus %.1f, normal %.1f.\n",
			w.Risk, w.Focus, w.Normal)
	}
	if v.RulesPrompt != "" {
		fmt.Fprintf(b, "%s\n", v.RulesPrompt)
	}

	if len(v.Factions) > 0 {
		b.WriteString("Factions:\n")
		for i, f := range v.Factions {
			fmt.Fprintf(b, "  %d. %s (%s) reputation %d\n", i, f.Name, f.Stance, f.Reputation)
		}
	}
	if len(v.Entities) > 0 {
		b.WriteString("Known characters:\n")
		for _, e := range v.Entities {
			fmt.Fprintf(b, "  %s: %s, %s [%s]\n", e.ID, e.Name, e.Role, e.Status)
		}
	}
	if len(v.Dead) > 0 {
		names := make([]string, len(v.Dead))
		for i, e := range v.Dead {
			names[i] = e.Name
		}
		fmt.Fprintf(b, "Dead: %s\n", strings.Join(names, ", "))
	}
	if v.CompressedHistory != "" {
		fmt.Fprintf(b, "Story so far: %s\n", v.CompressedHistory)
	}
	if len(v.RecentLog) > 0 {
		b.WriteString("Recent events:\n")
		for _, e := range v.RecentLog {
			fmt.Fprintf(b, "[%s] %s\n", e.Role, e.Text)
		}
	}
}
