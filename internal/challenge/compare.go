package challenge

// Políticas de desempate quando as contagens de acertos empatam.
const (
	TieBreakPoints = "points" // cai para os tokens; persiste empate = sem vencedor
	TieBreakDraw   = "draw"   // empate direto
)

// Estados do comparativo.
const (
	StateInProgress = "in-progress"
	StateFinal      = "final"
)

// Marcador de ausência: o identity não registrou take para o prop.
const noTake = "—"

// Take é a visão do comparador sobre um take latest.
type Take struct {
	PropID        string
	Side          string
	Result        string // pending|won|lost
	PointsAwarded int
}

// PropRow é a visão do comparador sobre um prop do pack.
type PropRow struct {
	ID          string
	SideALabel  string
	SideBLabel  string
	Status      string
	WinningSide string
	Points      int
}

// PropComparison é a linha por prop do comparativo.
type PropComparison struct {
	PropID      string `json:"propId"`
	ASide       string `json:"aSide"` // "A" | "B" | "—"
	BSide       string `json:"bSide"`
	WinningSide string `json:"winningSide,omitempty"`
	ACorrect    bool   `json:"aCorrect"`
	BCorrect    bool   `json:"bCorrect"`
}

// Result é o comparativo completo entre os dois lados do challenge.
type Result struct {
	State       string           `json:"state"` // in-progress | final
	PerProp     []PropComparison `json:"perProp"`
	ACorrect    int              `json:"aCorrect"`
	BCorrect    int              `json:"bCorrect"`
	ATokens     int              `json:"aTokens"`
	BTokens     int              `json:"bTokens"`
	BonusSplitA int              `json:"bonusSplitA"`
	BonusSplitB int              `json:"bonusSplitB"`
	Winner      string           `json:"winner,omitempty"` // "A" | "B" | vazio
}

// Compare computa o comparativo por prop e o split do bônus. É uma função
// pura sobre os takes latest dos dois recibos e os props do pack.
//
// O challenge só é final quando todos os props do pack estão apurados e os
// dois lados têm pelo menos um take; antes disso o resultado sai parcial com
// state=in-progress (um lado sem submissões não é erro).
func Compare(props []PropRow, takesA, takesB []Take, bonusPool int, tieBreak string) Result {
	byPropA := indexByProp(takesA)
	byPropB := indexByProp(takesB)

	res := Result{State: StateFinal}
	if len(takesA) == 0 || len(takesB) == 0 || len(props) == 0 {
		res.State = StateInProgress
	}

	for _, p := range props {
		row := PropComparison{PropID: p.ID, ASide: noTake, BSide: noTake}

		if p.Status != "graded" || p.WinningSide == "" {
			res.State = StateInProgress
		} else {
			row.WinningSide = p.WinningSide
		}

		if ta, ok := byPropA[p.ID]; ok {
			row.ASide = ta.Side
			if row.WinningSide != "" && ta.Side == row.WinningSide {
				row.ACorrect = true
				res.ACorrect++
			}
			res.ATokens += ta.PointsAwarded
		}
		if tb, ok := byPropB[p.ID]; ok {
			row.BSide = tb.Side
			if row.WinningSide != "" && tb.Side == row.WinningSide {
				row.BCorrect = true
				res.BCorrect++
			}
			res.BTokens += tb.PointsAwarded
		}

		res.PerProp = append(res.PerProp, row)
	}

	res.Winner = pickWinner(res, tieBreak)

	// Bônus só é repartido quando o challenge está fechado
	if res.State == StateFinal && bonusPool > 0 {
		res.BonusSplitA, res.BonusSplitB = splitBonus(bonusPool, res.ACorrect, res.BCorrect, res.Winner)
	}

	return res
}

func indexByProp(takes []Take) map[string]Take {
	m := make(map[string]Take, len(takes))
	for _, t := range takes {
		m[t.PropID] = t
	}
	return m
}

func pickWinner(r Result, tieBreak string) string {
	switch {
	case r.ACorrect > r.BCorrect:
		return "A"
	case r.BCorrect > r.ACorrect:
		return "B"
	}
	if tieBreak == TieBreakPoints {
		switch {
		case r.ATokens > r.BTokens:
			return "A"
		case r.BTokens > r.ATokens:
			return "B"
		}
	}
	return ""
}

// splitBonus reparte o pool proporcional aos acertos, em inteiros.
// O resto do arredondamento vai para o líder, garantindo
// splitA + splitB == pool sempre. Sem nenhum acerto, o pool é
// dividido ao meio (resto para o lado A, determinístico).
func splitBonus(pool, aCorrect, bCorrect int, winner string) (int, int) {
	total := aCorrect + bCorrect
	if total == 0 {
		b := pool / 2
		return pool - b, b
	}

	a := pool * aCorrect / total
	b := pool * bCorrect / total
	rem := pool - a - b
	if rem > 0 {
		if winner == "B" {
			b += rem
		} else {
			a += rem
		}
	}
	return a, b
}
