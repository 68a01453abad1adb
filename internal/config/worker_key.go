package config

type WorkerKeyStruct struct {
	PersistScoresQueue  string
	TeacherCleanupQueue string
}

var WorkerKey = &WorkerKeyStruct{
	PersistScoresQueue:  "persist_scores_queue",
	TeacherCleanupQueue: "teacher_cleanup_queue",
}
