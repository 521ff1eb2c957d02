package ui

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"

	"nutrilog/internal/meals"
	"nutrilog/internal/model"
)

type undoAction struct {
	label string
	undo  func(ctx context.Context) error
	redo  func(ctx context.Context) error
}

type undoAppliedMsg struct {
	err       error
	action    undoAction
	direction string // undo, redo
}

func (m *Model) pushUndoAction(action undoAction) {
	m.undoStack = append(m.undoStack, action)
	m.redoStack = nil
}

func (m *Model) undoCmd() tea.Cmd {
	if len(m.undoStack) == 0 {
		return nil
	}
	action := m.undoStack[len(m.undoStack)-1]
	m.undoStack = m.undoStack[:len(m.undoStack)-1]
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		return undoAppliedMsg{err: action.undo(ctx), action: action, direction: "undo"}
	}
}

func (m *Model) redoCmd() tea.Cmd {
	if len(m.redoStack) == 0 {
		return nil
	}
	action := m.redoStack[len(m.redoStack)-1]
	m.redoStack = m.redoStack[:len(m.redoStack)-1]
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		return undoAppliedMsg{err: action.redo(ctx), action: action, direction: "redo"}
	}
}

// applyUndoResult moves the action to the opposite stack when it succeeded.
func (m *Model) applyUndoResult(msg undoAppliedMsg) tea.Cmd {
	if msg.err != nil {
		// Put the action back so the user can retry.
		if msg.direction == "undo" {
			m.undoStack = append(m.undoStack, msg.action)
		} else {
			m.redoStack = append(m.redoStack, msg.action)
		}
		m.error = fmt.Sprintf("%s failed: %v", msg.direction, msg.err)
		return nil
	}

	if msg.direction == "undo" {
		m.redoStack = append(m.redoStack, msg.action)
		m.info = "Undid " + msg.action.label
	} else {
		m.undoStack = append(m.undoStack, msg.action)
		m.info = "Redid " + msg.action.label
	}
	m.error = ""
	return loadMealsCmd(m.svc)
}

// deletedMeal tracks the id of a meal that undo may bring back under a new id.
type deletedMeal struct {
	snap meals.Snapshot
	id   int64
}

func (m *Model) buildDeleteAction(snap meals.Snapshot) undoAction {
	svc := m.svc
	d := &deletedMeal{snap: snap, id: snap.Meal.ID}
	return undoAction{
		label: "delete of " + snap.Meal.MealName,
		undo: func(ctx context.Context) error {
			restored, err := svc.Restore(ctx, d.snap)
			if restored.ID != 0 {
				d.id = restored.ID
			}
			return err
		},
		redo: func(ctx context.Context) error {
			return svc.DeleteMeal(ctx, d.id)
		},
	}
}

func (m *Model) buildFollowTipAction(before model.MealRecord) undoAction {
	svc := m.svc
	id := before.ID
	return undoAction{
		label: "tip on " + before.MealName,
		undo: func(ctx context.Context) error {
			g, orig, followed := before.MealGrade, before.OriginalGrade, before.TipFollowed
			_, err := svc.UpdateMeal(ctx, id, model.MealUpdate{
				MealGrade:     &g,
				OriginalGrade: &orig,
				TipFollowed:   &followed,
			})
			return err
		},
		redo: func(ctx context.Context) error {
			_, err := svc.FollowTip(ctx, id)
			return err
		},
	}
}
