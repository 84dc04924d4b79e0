package session

import "github.com/aiedbg/aiedbg/pkg/imagewatch"

// watchImages reloads the program image of a core in the console when it
// is rebuilt.
func (s *Session) watchImages() error {
	w, err := imagewatch.New(reloadDelay, s.reloadImage)
	if err != nil {
		return err
	}
	for i := range s.st.cores {
		if err := w.Add(i, s.imagePath(&s.st.cores[i])); err != nil {
			w.Close()
			return err
		}
	}
	s.watcher = w
	return nil
}

// reloadImage loads the program image of the core at position i again and
// makes the current core the active target.
func (s *Session) reloadImage(i int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i < 0 || i >= len(s.st.cores) {
		return
	}
	core := &s.st.cores[i]
	s.log.Infof("reloading program image of %s", core.Name())
	if err := s.loadImage(core); err != nil {
		s.log.Errorf("reloading %s: %v", s.imagePath(core), err)
	}
	s.invalidateMemory()
	s.restoreTarget()
}
