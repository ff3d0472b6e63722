// Package diff implements the recursive 2-way and 3-way structural
// comparison of directory trees. Only subtrees reachable through
// directories present on at least two sides are descended into: a subtree
// missing from one side entirely is reported as a single line for its root,
// never one line per descendant.
package diff

import (
	"bufio"
	"fmt"
	"io"

	"github.com/jamesainslie/ddm/pkg/ddm/element"
	"github.com/jamesainslie/ddm/pkg/ddm/tree"
)

// Line2 is one point of disagreement between two trees. A nil slot means
// the element is absent on that side.
type Line2 [2]*element.Element

// Line3 is one point of disagreement among three trees.
type Line3 [3]*element.Element

const absent = "/dev/null"

// String renders the 2-way diff line pair without the trailing blank line.
func (d Line2) String() string {
	return fmt.Sprintf("- %s\n+ %s\n", side(d[0]), side(d[1]))
}

// String renders the 3-way diff line triple without the trailing blank line.
func (d Line3) String() string {
	return fmt.Sprintf("a %s\nb %s\nc %s\n", side(d[0]), side(d[1]), side(d[2]))
}

func side(e *element.Element) string {
	if e == nil {
		return absent
	}
	return e.String()
}

// Write2 prints a 2-way diff in the diff file format: a `- `/`+ ` pair per
// line of disagreement, one blank line after each pair.
func Write2(w io.Writer, lines []Line2) error {
	bw := bufio.NewWriter(w)
	for _, d := range lines {
		if _, err := fmt.Fprintf(bw, "%s\n", d); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// Write3 prints a 3-way diff in the `a `/`b `/`c ` triple format.
func Write3(w io.Writer, lines []Line3) error {
	bw := bufio.NewWriter(w)
	for _, d := range lines {
		if _, err := fmt.Fprintf(bw, "%s\n", d); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// Diff2 compares two trees under the given mask.
func Diff2(a, b *tree.Tree, opt element.CompareOpt) []Line2 {
	var out []Line2
	diff2Nodes(a.Roots(), b.Roots(), opt, &out)
	return out
}

// diff2Nodes compares one directory level in lockstep and recurses into
// directory pairs present on both sides.
func diff2Nodes(a, b []*tree.Node, opt element.CompareOpt, out *[]Line2) {
	bNodes := make(map[string]*tree.Node, len(b))
	for _, n := range b {
		bNodes[n.Element().Path] = n
	}

	type dirPair struct{ a, b *tree.Node }
	var commonDirs []dirPair
	for _, an := range a {
		ae := an.Element()
		bn, ok := bNodes[ae.Path]
		if !ok {
			*out = append(*out, Line2{ae, nil})
			continue
		}
		delete(bNodes, ae.Path)
		be := bn.Element()
		if !element.Compare(ae, be, opt) {
			*out = append(*out, Line2{ae, be})
		}
		// Pruning: only descend where both sides have a directory. Equal
		// directories still recurse so differing descendants surface.
		if ae.IsDirectory() && be.IsDirectory() {
			commonDirs = append(commonDirs, dirPair{an, bn})
		}
	}
	for _, bn := range b {
		if _, onlyB := bNodes[bn.Element().Path]; onlyB {
			*out = append(*out, Line2{nil, bn.Element()})
		}
	}
	for _, p := range commonDirs {
		diff2Nodes(p.a.Children(), p.b.Children(), opt, out)
	}
}

// Diff3 compares three trees under the given mask. When all three sides
// hold an element at the same path, pairwise comparison must be transitive;
// a violation would mean the comparison itself is inconsistent, which is a
// programming error and panics.
func Diff3(a, b, c *tree.Tree, opt element.CompareOpt) []Line3 {
	var out []Line3
	diff3Nodes([3][]*tree.Node{a.Roots(), b.Roots(), c.Roots()}, opt, &out)
	return out
}

func diff3Nodes(levels [3][]*tree.Node, opt element.CompareOpt, out *[]Line3) {
	byPath := [3]map[string]*tree.Node{}
	var order []string
	seen := map[string]bool{}
	for i, nodes := range levels {
		byPath[i] = make(map[string]*tree.Node, len(nodes))
		for _, n := range nodes {
			p := n.Element().Path
			byPath[i][p] = n
			if !seen[p] {
				seen[p] = true
				order = append(order, p)
			}
		}
	}

	var commonDirs [][3]*tree.Node
	for _, p := range order {
		var nodes [3]*tree.Node
		var elems [3]*element.Element
		present := 0
		for i := range byPath {
			if n, ok := byPath[i][p]; ok {
				nodes[i] = n
				elems[i] = n.Element()
				present++
			}
		}
		if present == 3 {
			ab := element.Compare(elems[0], elems[1], opt)
			bc := element.Compare(elems[1], elems[2], opt)
			if !ab || !bc {
				*out = append(*out, elems)
			} else if !element.Compare(elems[0], elems[2], opt) {
				panic(fmt.Sprintf("diff3: comparison of %s not transitive", p))
			}
			var dirs [3]*tree.Node
			numDirs := 0
			for i, e := range elems {
				if e.IsDirectory() {
					dirs[i] = nodes[i]
					numDirs++
				}
			}
			// Pruning: descend only when at least two sides are directories.
			if numDirs >= 2 {
				commonDirs = append(commonDirs, dirs)
			}
		} else {
			// At least one side is missing; always a difference.
			*out = append(*out, elems)
			if present == 2 {
				bothDirs := true
				for i := range nodes {
					if nodes[i] != nil && !elems[i].IsDirectory() {
						bothDirs = false
					}
				}
				if bothDirs {
					commonDirs = append(commonDirs, nodes)
				}
			}
		}
	}

	for _, dirs := range commonDirs {
		if dirs[0] != nil && dirs[1] != nil && dirs[2] != nil {
			diff3Nodes([3][]*tree.Node{dirs[0].Children(), dirs[1].Children(), dirs[2].Children()}, opt, out)
			continue
		}
		// One slot is absent (or not a directory): the problem reduces to
		// a 2-way diff whose results are lifted back into triples.
		var twoWay []Line2
		switch {
		case dirs[0] == nil:
			diff2Nodes(dirs[1].Children(), dirs[2].Children(), opt, &twoWay)
			for _, r := range twoWay {
				*out = append(*out, Line3{nil, r[0], r[1]})
			}
		case dirs[1] == nil:
			diff2Nodes(dirs[0].Children(), dirs[2].Children(), opt, &twoWay)
			for _, r := range twoWay {
				*out = append(*out, Line3{r[0], nil, r[1]})
			}
		default:
			diff2Nodes(dirs[0].Children(), dirs[1].Children(), opt, &twoWay)
			for _, r := range twoWay {
				*out = append(*out, Line3{r[0], r[1], nil})
			}
		}
	}
}
