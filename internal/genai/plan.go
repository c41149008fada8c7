package genai

// Candidate is one credential and model combination to try.
type Candidate struct {
	Credential Credential
	Model      string
}

// Plan is the ordered attempt list of one round.
type Plan struct {
	Candidates []Candidate
	// IgnoreCooldown is set when every credential is cooling down. It
	// disables model cooldowns for the round as well.
	IgnoreCooldown bool
}

// PlanRound orders the grid credentials-outer, models-inner and drops
// cooling entries. When every credential is cooling, or the remaining grid
// would be empty, cooldowns are ignored so the round still tries something.
func PlanRound(creds []Credential, models []string, snap Snapshot) Plan {
	ignore := len(creds) > 0
	for _, c := range creds {
		if !snap.CredentialCooling(c.Label) {
			ignore = false
			break
		}
	}

	plan := buildPlan(creds, models, snap, ignore)
	if len(plan.Candidates) == 0 && !ignore {
		plan = buildPlan(creds, models, snap, true)
	}
	return plan
}

func buildPlan(creds []Credential, models []string, snap Snapshot, ignore bool) Plan {
	plan := Plan{IgnoreCooldown: ignore}
	for _, c := range creds {
		if !ignore && snap.CredentialCooling(c.Label) {
			continue
		}
		for _, m := range models {
			if !ignore && snap.ModelCooling(m) {
				continue
			}
			plan.Candidates = append(plan.Candidates, Candidate{Credential: c, Model: m})
		}
	}
	return plan
}
