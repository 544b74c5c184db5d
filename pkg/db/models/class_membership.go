package models

import "github.com/google/uuid"

// ClassEnrollment links a student to a class.
type ClassEnrollment struct {
	ClassID   uuid.UUID `gorm:"column:class_id;type:uuid;primaryKey"`
	StudentID uuid.UUID `gorm:"column:student_id;type:uuid;primaryKey"`
}

// ClassTeacher links a teacher to a class they are assigned to.
type ClassTeacher struct {
	ClassID   uuid.UUID `gorm:"column:class_id;type:uuid;primaryKey"`
	TeacherID uuid.UUID `gorm:"column:teacher_id;type:uuid;primaryKey"`
}
