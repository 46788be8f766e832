package task

type TaskOption func(*Task)

// пустое имя оставляет имя по умолчанию
func WithName(name string) TaskOption {
	if name == "" {
		return nil
	}
	return func(task *Task) {
		task.Name = name
	}
}

func WithStatus(status Status) TaskOption {
	if !status.Valid() {
		return nil
	}
	return func(task *Task) {
		task.Status = status
	}
}
