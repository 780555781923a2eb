package router

import "bytes"

// node is one prefix-tree node. Children are kept in a flat slice rather
// than a map for data locality: route tables are small and built once at
// startup, so a linear scan beats map overhead.
type node struct {
	prefix  []byte
	ch      []node
	factory Factory
	isparam bool
}

func (n *node) insert(path []byte, f Factory) {
	if len(path) > 0 && path[0] == '/' {
		path = path[1:]
	}
	segments := bytes.Split(path, []byte("/"))
	cur := n

	for _, s := range segments {
		if len(s) == 0 {
			continue
		}
		isparam, pref := len(s) > 0 && s[0] == ':', s
		if isparam {
			pref = s[1:]
		}

		idx := -1
		for i := range cur.ch {
			if bytes.Equal(cur.ch[i].prefix, pref) {
				idx = i
				break
			}
		}
		if idx == -1 {
			prefCopy := make([]byte, len(pref))
			copy(prefCopy, pref)
			cur.ch = append(cur.ch, node{prefix: prefCopy, isparam: isparam})
			idx = len(cur.ch) - 1
		}
		cur = &cur.ch[idx]
	}
	cur.factory = f
}

// find walks the tree matching fp (the remaining path), appending any
// param matches into params, and returns the Factory for an exact match.
func (n *node) find(fp []byte, curOffset uint16, params *[]Param) Factory {
	if len(fp) > 0 && fp[0] == '/' {
		fp = fp[1:]
		curOffset++
	}
	if len(fp) == 0 {
		return n.factory
	}

	for i := range n.ch {
		c := &n.ch[i]
		if c.isparam || !bytes.HasPrefix(fp, c.prefix) {
			continue
		}
		rem := fp[len(c.prefix):]
		if len(rem) != 0 && rem[0] != '/' {
			continue
		}
		if f := c.find(rem, curOffset+uint16(len(c.prefix)), params); f != nil {
			return f
		}
	}

	for i := range n.ch {
		c := &n.ch[i]
		if !c.isparam {
			continue
		}
		end := bytes.IndexByte(fp, '/')
		if end == -1 {
			end = len(fp)
		}

		mark := len(*params)
		*params = append(*params, Param{
			Key: string(c.prefix),
		})
		paramIdx := mark

		if f := c.find(fp[end:], curOffset+uint16(end), params); f != nil {
			(*params)[paramIdx].Val.St = curOffset
			(*params)[paramIdx].Val.End = curOffset + uint16(end)
			return f
		}
		*params = (*params)[:mark]
	}

	return nil
}
