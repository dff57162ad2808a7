package workset

// SelectionSet 当前表中被选中的记录 key，按加入顺序保存
// 搜索条件或页码变化时不会自动裁剪
type SelectionSet struct {
	keys []string
	set  map[string]struct{}
}

func NewSelectionSet() *SelectionSet {
	return &SelectionSet{set: map[string]struct{}{}}
}

func (s *SelectionSet) Len() int {
	return len(s.keys)
}

func (s *SelectionSet) Has(key string) bool {
	_, ok := s.set[key]
	return ok
}

func (s *SelectionSet) Keys() []string {
	return append([]string(nil), s.keys...)
}

func (s *SelectionSet) add(key string) {
	if _, ok := s.set[key]; ok {
		return
	}
	s.set[key] = struct{}{}
	s.keys = append(s.keys, key)
}

// Toggle 不存在时加入，存在时移除，返回 key 是否处于选中状态
func (s *SelectionSet) Toggle(key string) bool {
	if s.Has(key) {
		s.Remove(key)
		return false
	}
	s.add(key)
	return true
}

// ToggleAllOnPage 选中集合恰好等于本页 key 集合时清空，否则把本页未选中的 key 并入
func (s *SelectionSet) ToggleAllOnPage(pageKeys []string) {
	page := make(map[string]struct{}, len(pageKeys))
	for _, key := range pageKeys {
		page[key] = struct{}{}
	}
	if len(page) == len(s.set) && len(page) > 0 {
		equal := true
		for key := range page {
			if !s.Has(key) {
				equal = false
				break
			}
		}
		if equal {
			s.Clear()
			return
		}
	}
	for _, key := range pageKeys {
		s.add(key)
	}
}

func (s *SelectionSet) Remove(keys ...string) {
	removed := false
	for _, key := range keys {
		if _, ok := s.set[key]; ok {
			delete(s.set, key)
			removed = true
		}
	}
	if !removed {
		return
	}
	kept := s.keys[:0]
	for _, key := range s.keys {
		if _, ok := s.set[key]; ok {
			kept = append(kept, key)
		}
	}
	s.keys = kept
}

// Retain 只保留 keep 返回 true 的 key
func (s *SelectionSet) Retain(keep func(key string) bool) {
	var removed []string
	for _, key := range s.keys {
		if !keep(key) {
			removed = append(removed, key)
		}
	}
	s.Remove(removed...)
}

// Rename 记录的 key 变化后原位替换，新 key 已被选中时只移除旧 key
func (s *SelectionSet) Rename(oldKey string, newKey string) {
	if oldKey == newKey || !s.Has(oldKey) {
		return
	}
	if s.Has(newKey) {
		s.Remove(oldKey)
		return
	}
	delete(s.set, oldKey)
	s.set[newKey] = struct{}{}
	for i, key := range s.keys {
		if key == oldKey {
			s.keys[i] = newKey
			break
		}
	}
}

func (s *SelectionSet) Clear() {
	s.keys = nil
	s.set = map[string]struct{}{}
}
