package rewrite

import (
	"sort"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/Alok/autoflake/pkg/parser"
	"github.com/Alok/autoflake/pkg/resolve"
	"github.com/Alok/autoflake/pkg/scope"
)

// Action is what happens to one statement.
type Action int

const (
	ActionKeep Action = iota
	ActionDelete
	ActionPass
	ActionPartial
)

func (a Action) String() string {
	switch a {
	case ActionDelete:
		return "delete"
	case ActionPass:
		return "replace-with-pass"
	case ActionPartial:
		return "partial"
	default:
		return "keep"
	}
}

// Skip reasons.
const (
	ReasonNoQA       = "noqa comment"
	ReasonComment    = "line carries a comment"
	ReasonUsedInside = "edit would cross a used binding"
	ReasonNoTarget   = "value does not follow the target"
)

// Removal describes one binding taken out of the source.
type Removal struct {
	Name   string       `json:"name" toon:"name" yaml:"name"`
	Kind   string       `json:"kind" toon:"kind" yaml:"kind"`
	Tag    resolve.Tag  `json:"tag" toon:"tag" yaml:"tag"`
	Module string       `json:"module,omitempty" toon:"module,omitempty" yaml:"module,omitempty"`
	Range  parser.Range `json:"range" toon:"range" yaml:"range"`

	// Expanded marks names that came from an expanded star-import.
	Expanded bool `json:"expanded,omitempty" toon:"expanded,omitempty" yaml:"expanded,omitempty"`
}

// Skip is a dead binding the planner left alone.
type Skip struct {
	Name   string `json:"name" toon:"name" yaml:"name"`
	Line   int    `json:"line" toon:"line" yaml:"line"`
	Reason string `json:"reason" toon:"reason" yaml:"reason"`
}

// PlanResult holds the edits for one file and what they remove.
type PlanResult struct {
	Edits    *EditSet
	Actions  []Action
	Removals []Removal
	Skipped  []Skip
}

type pending struct {
	op   EditOp
	dead []resolve.DeadBinding
}

type planner struct {
	g     *scope.Graph
	guard *roaring.Bitmap
	out   *PlanResult

	partial map[int][]pending
	whole   map[int][]resolve.DeadBinding
}

// Plan maps the dead bindings of res to a sorted, non-overlapping edit set.
// Whole statements go when every binding they make is dead; multi-name
// imports lose only their dead names; a block that would end up empty keeps
// a "pass".
func Plan(g *scope.Graph, res *resolve.Result) (*PlanResult, error) {
	p := &planner{
		g:     g,
		guard: usedRanges(g, res),
		out: &PlanResult{
			Edits:   &EditSet{},
			Actions: make([]Action, len(g.Statements)),
		},
		partial: make(map[int][]pending),
		whole:   make(map[int][]resolve.DeadBinding),
	}

	imports := make(map[int][]resolve.DeadBinding)
	assigns := make(map[int]resolve.DeadBinding)
	for _, d := range res.Dead {
		bd := g.Bindings[d.Binding]
		switch bd.Kind {
		case scope.BindExceptTarget:
			if err := p.exceptTarget(d, bd); err != nil {
				return nil, err
			}
		case scope.BindAssignment:
			assigns[bd.Stmt] = d
		default:
			imports[bd.Stmt] = append(imports[bd.Stmt], d)
		}
	}

	for id, dead := range imports {
		p.importStatement(g.Statements[id], dead)
	}
	for id, d := range assigns {
		p.assignment(g.Statements[id], d)
	}

	p.keepBlocksNonEmpty()

	for _, group := range g.Groups {
		if err := p.group(group); err != nil {
			return nil, err
		}
	}

	sort.Slice(p.out.Removals, func(i, j int) bool {
		return p.out.Removals[i].Range.Start.Offset < p.out.Removals[j].Range.Start.Offset
	})
	sort.Slice(p.out.Skipped, func(i, j int) bool {
		return p.out.Skipped[i].Line < p.out.Skipped[j].Line
	})
	return p.out, nil
}

// usedRanges collects the byte ranges of every used binding that lives at
// statement level. Parameters and comprehension targets sit inside
// expressions that may be dropped whole.
func usedRanges(g *scope.Graph, res *resolve.Result) *roaring.Bitmap {
	bm := roaring.New()
	for _, bd := range g.Bindings {
		if !res.IsUsed(bd.ID) || bd.Kind == scope.BindParameter {
			continue
		}
		if g.Scopes[bd.Scope].Kind == scope.KindComprehension {
			continue
		}
		if r := bd.Range; r.Len() > 0 {
			bm.AddRange(uint64(r.Start.Offset), uint64(r.End.Offset))
		}
	}
	return bm
}

func (p *planner) importStatement(st *scope.Statement, dead []resolve.DeadBinding) {
	if st.NoQA {
		p.skip(dead, ReasonNoQA)
		return
	}

	byBinding := make(map[int]resolve.DeadBinding, len(dead))
	for _, d := range dead {
		byBinding[d.Binding] = d
	}
	items := st.Items
	if len(byBinding) == len(items) {
		if st.Comment {
			p.skip(dead, ReasonComment)
			return
		}
		p.out.Actions[st.ID] = ActionDelete
		p.whole[st.ID] = dead
		return
	}

	isDead := func(i int) bool {
		_, ok := byBinding[items[i].Binding]
		return ok
	}
	forEachRun(len(items), isDead, func(i, j int) {
		var start, end int
		if j < len(items)-1 {
			start, end = items[i].Start, items[j+1].Start
		} else {
			start, end = items[i-1].End, items[j].End
		}
		var run []resolve.DeadBinding
		for k := i; k <= j; k++ {
			run = append(run, byBinding[items[k].Binding])
		}
		if p.g.HasComment(start, end) {
			p.skip(run, ReasonComment)
			return
		}
		p.partial[st.ID] = append(p.partial[st.ID], pending{
			op:   EditOp{Kind: OpDelete, Start: start, End: end},
			dead: run,
		})
		p.out.Actions[st.ID] = ActionPartial
	})
}

// assignment drops a dead single-target assignment. A right-hand side that
// may have side effects survives as a bare expression statement.
func (p *planner) assignment(st *scope.Statement, d resolve.DeadBinding) {
	bd := p.g.Bindings[d.Binding]
	dead := []resolve.DeadBinding{d}
	if st.NoQA {
		p.skip(dead, ReasonNoQA)
		return
	}
	if bd.Pure {
		if st.Comment {
			p.skip(dead, ReasonComment)
			return
		}
		p.out.Actions[st.ID] = ActionDelete
		p.whole[st.ID] = dead
		return
	}

	start, end := st.Start, bd.Value.Start.Offset
	if end <= start {
		p.skip(dead, ReasonNoTarget)
		return
	}
	if p.g.HasComment(start, end) {
		p.skip(dead, ReasonComment)
		return
	}
	p.partial[st.ID] = append(p.partial[st.ID], pending{
		op:   EditOp{Kind: OpDelete, Start: start, End: end},
		dead: dead,
	})
	p.out.Actions[st.ID] = ActionPartial
}

// exceptTarget rewrites "except E as e:" to "except E:".
func (p *planner) exceptTarget(d resolve.DeadBinding, bd *scope.Binding) error {
	dead := []resolve.DeadBinding{d}
	if bd.Cut.Len() <= 0 {
		return nil
	}
	if p.g.NoQARows.Contains(uint32(bd.Range.Start.Line)) {
		p.skip(dead, ReasonNoQA)
		return nil
	}
	if p.g.HasComment(bd.Cut.Start.Offset, bd.Cut.End.Offset) {
		p.skip(dead, ReasonComment)
		return nil
	}
	return p.add(EditOp{Kind: OpDelete, Start: bd.Cut.Start.Offset, End: bd.Cut.End.Offset}, dead)
}

// keepBlocksNonEmpty turns the first deleted statement of a block that
// would lose every statement into "pass".
func (p *planner) keepBlocksNonEmpty() {
	for _, blk := range p.g.Blocks {
		if blk.Module || len(blk.Stmts) == 0 {
			continue
		}
		all := true
		for _, id := range blk.Stmts {
			if p.out.Actions[id] != ActionDelete {
				all = false
				break
			}
		}
		if all {
			p.out.Actions[blk.Stmts[0]] = ActionPass
		}
	}
}

// group emits the edits for statements sharing lines through ";".
func (p *planner) group(group []int) error {
	stmts := make([]*scope.Statement, len(group))
	all := true
	for i, id := range group {
		stmts[i] = p.g.Statements[id]
		if p.out.Actions[id] != ActionDelete {
			all = false
		}
	}
	first, last := stmts[0], stmts[len(stmts)-1]

	if all && p.ownsLines(first, last) {
		var dead []resolve.DeadBinding
		for _, st := range stmts {
			dead = append(dead, p.whole[st.ID]...)
		}
		lines := p.g.Lines
		return p.add(EditOp{
			Kind:  OpDelete,
			Start: lines.LineStart(first.FirstRow),
			End:   lines.NextLineStart(last.LastRow),
		}, dead)
	}

	isDead := func(i int) bool { return p.out.Actions[stmts[i].ID] == ActionDelete }
	var err error
	forEachRun(len(stmts), isDead, func(i, j int) {
		var start, end int
		switch {
		case j < len(stmts)-1:
			start, end = stmts[i].Start, stmts[j+1].Start
		case i > 0:
			start, end = stmts[i-1].End, stmts[j].End
		default:
			start, end = first.Start, last.End
		}
		var dead []resolve.DeadBinding
		for k := i; k <= j; k++ {
			dead = append(dead, p.whole[stmts[k].ID]...)
		}
		if err == nil {
			err = p.add(EditOp{Kind: OpDelete, Start: start, End: end}, dead)
		}
	})
	if err != nil {
		return err
	}

	for _, st := range stmts {
		switch p.out.Actions[st.ID] {
		case ActionPass:
			if err := p.add(EditOp{Kind: OpReplace, Start: st.Start, End: st.End, Text: "pass"}, p.whole[st.ID]); err != nil {
				return err
			}
		case ActionPartial:
			for _, pd := range p.partial[st.ID] {
				if err := p.add(pd.op, pd.dead); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// ownsLines reports whether the statements from first to last are the only
// code on their lines.
func (p *planner) ownsLines(first, last *scope.Statement) bool {
	src := p.g.Source
	lines := p.g.Lines
	for _, c := range src[lines.LineStart(first.FirstRow):first.Start] {
		if c != ' ' && c != '\t' && c != '\f' {
			return false
		}
	}
	for _, c := range src[last.End:lines.LineEnd(last.LastRow)] {
		if c != ' ' && c != '\t' && c != '\f' && c != ';' {
			return false
		}
	}
	return true
}

// add records op unless it would delete part of a used binding.
func (p *planner) add(op EditOp, dead []resolve.DeadBinding) error {
	span := roaring.New()
	span.AddRange(uint64(op.Start), uint64(op.End))
	if span.Intersects(p.guard) {
		p.skip(dead, ReasonUsedInside)
		return nil
	}
	if err := p.out.Edits.Add(op); err != nil {
		return err
	}
	for _, d := range dead {
		bd := p.g.Bindings[d.Binding]
		p.out.Removals = append(p.out.Removals, Removal{
			Name:     d.Name,
			Kind:     bd.Kind.String(),
			Tag:      d.Tag,
			Module:   bd.Module,
			Range:    bd.Range,
			Expanded: bd.FromStar,
		})
	}
	return nil
}

func (p *planner) skip(dead []resolve.DeadBinding, reason string) {
	for _, d := range dead {
		p.out.Skipped = append(p.out.Skipped, Skip{
			Name:   d.Name,
			Line:   d.Range.Start.Line,
			Reason: reason,
		})
	}
}

// forEachRun calls fn for every maximal run [i, j] of indices below n for
// which match holds.
func forEachRun(n int, match func(int) bool, fn func(i, j int)) {
	for i := 0; i < n; {
		if !match(i) {
			i++
			continue
		}
		j := i
		for j+1 < n && match(j+1) {
			j++
		}
		fn(i, j)
		i = j + 1
	}
}
