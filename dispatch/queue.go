package dispatch

// BuildQueue expands resolved specs into the ordered task sequence. Tasks are
// interleaved round-robin: each pass over the spec list, in original order,
// emits one task per command that still has repeats left. Every command
// therefore shows up within the first pass, so a low-concurrency run samples
// all commands early instead of draining one command's backlog first. The
// output is fully deterministic: identical specs yield an identical sequence,
// with len(tasks) == sum of resolved counts.
func BuildQueue(specs []CommandSpec) []Task {
	total := 0
	remaining := make([]int, len(specs))
	for i, spec := range specs {
		remaining[i] = spec.ResolvedCount
		total += spec.ResolvedCount
	}

	tasks := make([]Task, 0, total)
	emitted := make([]int, len(specs))
	for len(tasks) < total {
		for i := range specs {
			if remaining[i] == 0 {
				continue
			}
			tasks = append(tasks, Task{
				CommandIndex: i,
				Sequence:     emitted[i],
				QueueIndex:   len(tasks),
				Argv:         specs[i].Argv,
			})
			emitted[i]++
			remaining[i]--
		}
	}
	return tasks
}
