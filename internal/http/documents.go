package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"gamify-journal/internal/domain"
	"gamify-journal/internal/service"
)

type DocumentResponse struct {
	ID        int64  `json:"id"`
	OwnerID   int64  `json:"owner_id"`
	FolderID  *int64 `json:"folder_id"`
	Name      string `json:"name"`
	Content   string `json:"content"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

type FolderResponse struct {
	ID             int64              `json:"id"`
	OwnerID        int64              `json:"owner_id"`
	ParentFolderID *int64             `json:"parent_folder_id"`
	Name           string             `json:"name"`
	CreatedAt      string             `json:"created_at"`
	UpdatedAt      string             `json:"updated_at"`
	Documents      []DocumentResponse `json:"documents"`
	Subfolders     []FolderResponse   `json:"subfolders"`
}

type DocumentStructureResponse struct {
	RootDocuments []DocumentResponse `json:"root_documents"`
	Folders       []FolderResponse   `json:"folders"`
}

type documentRequest struct {
	Name     *string `json:"name"`
	Content  *string `json:"content"`
	FolderID *int64  `json:"folder_id"`
}

type folderRequest struct {
	Name           *string `json:"name"`
	ParentFolderID *int64  `json:"parent_folder_id"`
}

func (h *Handler) createDocument(c *gin.Context) {
	var req documentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Name == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "name is required"})
		return
	}

	doc, err := h.svc.Documents.CreateDocument(c.Request.Context(), currentUserID(c), service.DocumentInput{
		Name:     *req.Name,
		Content:  req.Content,
		FolderID: req.FolderID,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, documentToResponse(*doc))
}

func (h *Handler) documentStructure(c *gin.Context) {
	tree, err := h.svc.Documents.Structure(c.Request.Context(), currentUserID(c))
	if err != nil {
		h.writeError(c, err)
		return
	}

	resp := DocumentStructureResponse{
		RootDocuments: documentsToResponse(tree.RootDocuments),
		Folders:       make([]FolderResponse, len(tree.Folders)),
	}
	for i := range tree.Folders {
		resp.Folders[i] = folderNodeToResponse(tree.Folders[i])
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) getDocument(c *gin.Context) {
	id, ok := parseID(c, "document")
	if !ok {
		return
	}

	doc, err := h.svc.Documents.GetDocument(c.Request.Context(), currentUserID(c), id)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, documentToResponse(*doc))
}

func (h *Handler) updateDocument(c *gin.Context) {
	id, ok := parseID(c, "document")
	if !ok {
		return
	}
	var req documentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	doc, err := h.svc.Documents.UpdateDocument(c.Request.Context(), currentUserID(c), id, service.DocumentUpdate{
		Name:     req.Name,
		Content:  req.Content,
		FolderID: req.FolderID,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, documentToResponse(*doc))
}

func (h *Handler) deleteDocument(c *gin.Context) {
	id, ok := parseID(c, "document")
	if !ok {
		return
	}
	if err := h.svc.Documents.DeleteDocument(c.Request.Context(), currentUserID(c), id); err != nil {
		h.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) createFolder(c *gin.Context) {
	var req folderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Name == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "name is required"})
		return
	}

	folder, err := h.svc.Documents.CreateFolder(c.Request.Context(), currentUserID(c), *req.Name, req.ParentFolderID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, folderToResponse(*folder))
}

func (h *Handler) updateFolder(c *gin.Context) {
	id, ok := parseID(c, "folder")
	if !ok {
		return
	}
	var req folderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	folder, err := h.svc.Documents.UpdateFolder(c.Request.Context(), currentUserID(c), id, service.FolderUpdate{
		Name:     req.Name,
		ParentID: req.ParentFolderID,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, folderToResponse(*folder))
}

func (h *Handler) deleteFolder(c *gin.Context) {
	id, ok := parseID(c, "folder")
	if !ok {
		return
	}
	if err := h.svc.Documents.DeleteFolder(c.Request.Context(), currentUserID(c), id); err != nil {
		h.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func documentToResponse(d domain.Document) DocumentResponse {
	return DocumentResponse{
		ID:        d.ID,
		OwnerID:   d.UserID,
		FolderID:  d.FolderID,
		Name:      d.Name,
		Content:   d.Content,
		CreatedAt: formatTime(d.CreatedAt),
		UpdatedAt: formatTime(d.UpdatedAt),
	}
}

func documentsToResponse(docs []domain.Document) []DocumentResponse {
	out := make([]DocumentResponse, len(docs))
	for i := range docs {
		out[i] = documentToResponse(docs[i])
	}
	return out
}

func folderToResponse(f domain.Folder) FolderResponse {
	return FolderResponse{
		ID:             f.ID,
		OwnerID:        f.UserID,
		ParentFolderID: f.ParentID,
		Name:           f.Name,
		CreatedAt:      formatTime(f.CreatedAt),
		UpdatedAt:      formatTime(f.UpdatedAt),
		Documents:      []DocumentResponse{},
		Subfolders:     []FolderResponse{},
	}
}

func folderNodeToResponse(node service.FolderNode) FolderResponse {
	resp := folderToResponse(node.Folder)
	resp.Documents = documentsToResponse(node.Documents)
	for _, sub := range node.Subfolders {
		resp.Subfolders = append(resp.Subfolders, folderNodeToResponse(sub))
	}
	return resp
}
