package store

import (
	"sort"
)

// KeyIndex is an immutable prefix index over flag keys. It is built once
// per edit and shared by every reader of the snapshot that carries it.
type KeyIndex struct {
	root *trieNode
}

type trieNode struct {
	children map[rune]*trieNode
	key      string // set on terminal nodes
}

func newTrie() *trieNode {
	return &trieNode{children: make(map[rune]*trieNode)}
}

func (t *trieNode) insert(key string) {
	node := t
	for _, ch := range key {
		if node.children == nil {
			node.children = make(map[rune]*trieNode)
		}
		next := node.children[ch]
		if next == nil {
			next = &trieNode{children: make(map[rune]*trieNode)}
			node.children[ch] = next
		}
		node = next
	}
	node.key = key
}

// walk descends along prefix and returns the node it ends on.
func (t *trieNode) walk(prefix string) *trieNode {
	node := t
	for _, ch := range prefix {
		if node == nil {
			return nil
		}
		node = node.children[ch]
	}
	return node
}

func (t *trieNode) collect(out *[]string) {
	if t == nil {
		return
	}
	if t.key != "" {
		*out = append(*out, t.key)
	}
	for _, child := range t.children {
		child.collect(out)
	}
}

// BuildKeyIndex indexes every key of a flag map.
func BuildKeyIndex[V any](flags map[string]V) *KeyIndex {
	root := newTrie()
	for key := range flags {
		if key == "" {
			continue
		}
		root.insert(key)
	}
	return &KeyIndex{root: root}
}

// WithPrefix returns all indexed keys starting with prefix, sorted.
// An empty prefix returns every key.
func (ix *KeyIndex) WithPrefix(prefix string) []string {
	if ix == nil || ix.root == nil {
		return nil
	}
	var out []string
	ix.root.walk(prefix).collect(&out)
	sort.Strings(out)
	return out
}
