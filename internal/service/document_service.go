package service

import (
	"context"
	"fmt"
	"html"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"gamify-journal/internal/domain"
	"gamify-journal/internal/repository"
)

const (
	maxDocumentNameLen = 200
	maxDocumentBytes   = 1 << 20
)

// DocumentInput creates a document. A nil Content gets a starter page and a
// missing or non-positive FolderID files it at the root.
type DocumentInput struct {
	Name     string
	Content  *string
	FolderID *int64
}

// DocumentUpdate holds optional changes. A FolderID <= 0 moves the document
// to the root.
type DocumentUpdate struct {
	Name     *string
	Content  *string
	FolderID *int64
}

// FolderUpdate holds optional changes. A ParentID <= 0 moves the folder to
// the root.
type FolderUpdate struct {
	Name     *string
	ParentID *int64
}

// FolderNode is a folder with everything filed beneath it.
type FolderNode struct {
	Folder     domain.Folder
	Documents  []domain.Document
	Subfolders []FolderNode
}

// DocumentTree is the full folder hierarchy of one user.
type DocumentTree struct {
	RootDocuments []domain.Document
	Folders       []FolderNode
}

type DocumentService interface {
	CreateDocument(ctx context.Context, userID int64, in DocumentInput) (*domain.Document, error)
	GetDocument(ctx context.Context, userID, id int64) (*domain.Document, error)
	UpdateDocument(ctx context.Context, userID, id int64, update DocumentUpdate) (*domain.Document, error)
	DeleteDocument(ctx context.Context, userID, id int64) error
	CreateFolder(ctx context.Context, userID int64, name string, parentID *int64) (*domain.Folder, error)
	UpdateFolder(ctx context.Context, userID, id int64, update FolderUpdate) (*domain.Folder, error)
	DeleteFolder(ctx context.Context, userID, id int64) error
	Structure(ctx context.Context, userID int64) (*DocumentTree, error)
}

type documentService struct {
	docs   repository.DocumentRepository
	tx     repository.TxRunner
	logger *logrus.Logger
}

func NewDocumentService(docs repository.DocumentRepository, tx repository.TxRunner, logger *logrus.Logger) DocumentService {
	return &documentService{docs: docs, tx: tx, logger: orStandard(logger)}
}

func (s *documentService) CreateDocument(ctx context.Context, userID int64, in DocumentInput) (*domain.Document, error) {
	name, err := validDocumentName(in.Name)
	if err != nil {
		return nil, err
	}
	content := starterPage(name)
	if in.Content != nil {
		content = *in.Content
	}
	if len(content) > maxDocumentBytes {
		return nil, invalid("content must be at most %d bytes", maxDocumentBytes)
	}

	doc := &domain.Document{UserID: userID, Name: name, Content: content}
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		folderID, err := s.ownedFolderID(ctx, userID, in.FolderID)
		if err != nil {
			return err
		}
		doc.FolderID = folderID
		_, err = s.docs.CreateDocument(ctx, doc)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.logger.WithFields(logrus.Fields{"user_id": userID, "document_id": doc.ID}).Info("document created")
	return doc, nil
}

func (s *documentService) GetDocument(ctx context.Context, userID, id int64) (*domain.Document, error) {
	doc, err := s.docs.GetDocument(ctx, id)
	if err != nil {
		return nil, err
	}
	if doc.UserID != userID {
		return nil, fmt.Errorf("document %d: %w", id, repository.ErrNotFound)
	}
	return doc, nil
}

func (s *documentService) UpdateDocument(ctx context.Context, userID, id int64, update DocumentUpdate) (*domain.Document, error) {
	var name string
	if update.Name != nil {
		var err error
		if name, err = validDocumentName(*update.Name); err != nil {
			return nil, err
		}
	}
	if update.Content != nil && len(*update.Content) > maxDocumentBytes {
		return nil, invalid("content must be at most %d bytes", maxDocumentBytes)
	}

	var doc *domain.Document
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		if doc, err = s.GetDocument(ctx, userID, id); err != nil {
			return err
		}
		if update.FolderID != nil {
			if doc.FolderID, err = s.ownedFolderID(ctx, userID, update.FolderID); err != nil {
				return err
			}
		}
		if name != "" {
			doc.Name = name
		}
		if update.Content != nil {
			doc.Content = *update.Content
		}
		return s.docs.UpdateDocument(ctx, doc)
	})
	if err != nil {
		return nil, err
	}
	return doc, nil
}

func (s *documentService) DeleteDocument(ctx context.Context, userID, id int64) error {
	return s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if _, err := s.GetDocument(ctx, userID, id); err != nil {
			return err
		}
		return s.docs.DeleteDocument(ctx, id)
	})
}

func (s *documentService) CreateFolder(ctx context.Context, userID int64, name string, parentID *int64) (*domain.Folder, error) {
	name, err := validDocumentName(name)
	if err != nil {
		return nil, err
	}

	folder := &domain.Folder{UserID: userID, Name: name}
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		parent, err := s.ownedFolderID(ctx, userID, parentID)
		if err != nil {
			return err
		}
		folder.ParentID = parent
		_, err = s.docs.CreateFolder(ctx, folder)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.logger.WithFields(logrus.Fields{"user_id": userID, "folder_id": folder.ID}).Info("folder created")
	return folder, nil
}

// UpdateFolder renames or moves a folder. Moving a folder under itself or
// one of its descendants is rejected.
func (s *documentService) UpdateFolder(ctx context.Context, userID, id int64, update FolderUpdate) (*domain.Folder, error) {
	var name string
	if update.Name != nil {
		var err error
		if name, err = validDocumentName(*update.Name); err != nil {
			return nil, err
		}
	}

	var folder *domain.Folder
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		if folder, err = s.ownedFolder(ctx, userID, id); err != nil {
			return err
		}
		if update.ParentID != nil {
			parent, err := s.ownedFolderID(ctx, userID, update.ParentID)
			if err != nil {
				return err
			}
			if parent != nil {
				if err := s.checkNoCycle(ctx, userID, id, *parent); err != nil {
					return err
				}
			}
			folder.ParentID = parent
		}
		if name != "" {
			folder.Name = name
		}
		return s.docs.UpdateFolder(ctx, folder)
	})
	if err != nil {
		return nil, err
	}
	return folder, nil
}

// DeleteFolder removes the folder together with its subfolders and documents.
func (s *documentService) DeleteFolder(ctx context.Context, userID, id int64) error {
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if _, err := s.ownedFolder(ctx, userID, id); err != nil {
			return err
		}
		return s.docs.DeleteFolder(ctx, id)
	})
	if err != nil {
		return err
	}
	s.logger.WithFields(logrus.Fields{"user_id": userID, "folder_id": id}).Info("folder deleted")
	return nil
}

func (s *documentService) Structure(ctx context.Context, userID int64) (*DocumentTree, error) {
	var (
		folders []domain.Folder
		docs    []domain.Document
	)
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		if folders, err = s.docs.ListFolders(ctx, userID); err != nil {
			return err
		}
		docs, err = s.docs.ListDocuments(ctx, userID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("load documents: %w", err)
	}
	return buildTree(folders, docs), nil
}

func (s *documentService) ownedFolder(ctx context.Context, userID, id int64) (*domain.Folder, error) {
	folder, err := s.docs.GetFolder(ctx, id)
	if err != nil {
		return nil, err
	}
	if folder.UserID != userID {
		return nil, fmt.Errorf("folder %d: %w", id, repository.ErrNotFound)
	}
	return folder, nil
}

// ownedFolderID resolves an optional folder reference. Nil and non-positive
// ids mean the root.
func (s *documentService) ownedFolderID(ctx context.Context, userID int64, id *int64) (*int64, error) {
	if id == nil || *id <= 0 {
		return nil, nil
	}
	folder, err := s.ownedFolder(ctx, userID, *id)
	if err != nil {
		return nil, err
	}
	return &folder.ID, nil
}

// checkNoCycle walks up from parent and fails if it reaches id.
func (s *documentService) checkNoCycle(ctx context.Context, userID, id, parent int64) error {
	folders, err := s.docs.ListFolders(ctx, userID)
	if err != nil {
		return err
	}
	parents := make(map[int64]*int64, len(folders))
	for _, f := range folders {
		parents[f.ID] = f.ParentID
	}

	seen := map[int64]bool{}
	for cur := &parent; cur != nil; cur = parents[*cur] {
		if *cur == id {
			return invalid("folder %d cannot be moved inside itself", id)
		}
		if seen[*cur] {
			break
		}
		seen[*cur] = true
	}
	return nil
}

func buildTree(folders []domain.Folder, docs []domain.Document) *DocumentTree {
	children := map[int64][]domain.Folder{}
	var roots []domain.Folder
	known := make(map[int64]bool, len(folders))
	for _, f := range folders {
		known[f.ID] = true
	}
	for _, f := range folders {
		if f.ParentID == nil || !known[*f.ParentID] {
			roots = append(roots, f)
			continue
		}
		children[*f.ParentID] = append(children[*f.ParentID], f)
	}

	filed := map[int64][]domain.Document{}
	tree := &DocumentTree{RootDocuments: []domain.Document{}, Folders: []FolderNode{}}
	for _, d := range docs {
		if d.FolderID == nil || !known[*d.FolderID] {
			tree.RootDocuments = append(tree.RootDocuments, d)
			continue
		}
		filed[*d.FolderID] = append(filed[*d.FolderID], d)
	}

	var build func(f domain.Folder) FolderNode
	build = func(f domain.Folder) FolderNode {
		node := FolderNode{Folder: f, Documents: filed[f.ID], Subfolders: []FolderNode{}}
		if node.Documents == nil {
			node.Documents = []domain.Document{}
		}
		for _, child := range sortFolders(children[f.ID]) {
			node.Subfolders = append(node.Subfolders, build(child))
		}
		return node
	}
	for _, f := range sortFolders(roots) {
		tree.Folders = append(tree.Folders, build(f))
	}
	return tree
}

func sortFolders(folders []domain.Folder) []domain.Folder {
	sort.SliceStable(folders, func(i, j int) bool {
		a, b := strings.ToLower(folders[i].Name), strings.ToLower(folders[j].Name)
		if a == b {
			return folders[i].ID < folders[j].ID
		}
		return a < b
	})
	return folders
}

func validDocumentName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", invalid("name is required")
	}
	if len(name) > maxDocumentNameLen {
		return "", invalid("name must be at most %d characters", maxDocumentNameLen)
	}
	return name, nil
}

func starterPage(name string) string {
	return "<h1>" + html.EscapeString(name) + "</h1><p>Start writing...</p>"
}
