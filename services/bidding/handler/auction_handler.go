package handler

import (
	"fmt"
	"mime/multipart"
	"net/http"

	auction "auction-house/internal/auctionService"
	"auction-house/internal/biddingerrors"
	model "auction-house/internal/models"
	"auction-house/services/bidding/helpers"
	"auction-house/utils"

	"github.com/gin-gonic/gin"
)

// imagesField is the multipart field carrying auction images
const imagesField = "images"

type AuctionHandler struct {
	service AuctionServiceInterface
}

func NewAuctionHandler(service AuctionServiceInterface) *AuctionHandler {
	return &AuctionHandler{service: service}
}

// ListAuctionsHandler handles GET /auctions?keyword=&status=&seller=
func (h *AuctionHandler) ListAuctionsHandler(c *gin.Context) {
	filter := model.AuctionFilter{
		Keyword:  c.Query("keyword"),
		Status:   model.Status(c.Query("status")),
		SellerID: c.Query("seller"),
	}

	auctions, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		helpers.RespondError(c, "ListAuctionsHandler", err, map[string]any{"status": string(filter.Status)})
		return
	}

	utils.JSONResponse(c, http.StatusOK, helpers.NewAuctionResponses(auctions), "auctions retrieved successfully")
	helpers.LogSuccess("ListAuctionsHandler", "auctions retrieved successfully", map[string]any{"count": len(auctions)})
}

// GetAuctionHandler handles GET /auctions/:id
func (h *AuctionHandler) GetAuctionHandler(c *gin.Context) {
	id := c.Param("id")
	a, err := h.service.Get(c.Request.Context(), id)
	if err != nil {
		helpers.RespondError(c, "GetAuctionHandler", err, map[string]any{"auction_id": id})
		return
	}

	utils.JSONResponse(c, http.StatusOK, helpers.NewAuctionResponse(a), "auction retrieved successfully")
}

// CreateAuctionHandler handles POST /auctions
func (h *AuctionHandler) CreateAuctionHandler(c *gin.Context) {
	sellerID, _ := helpers.CurrentUser(c)

	var req helpers.CreateAuctionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.HandleBindError(c, "CreateAuctionHandler", err)
		return
	}

	a, err := h.service.Create(c.Request.Context(), sellerID, auction.CreateInput{
		Title:         req.Title,
		Description:   req.Description,
		StartingPrice: *req.StartingPrice,
		StartTime:     req.StartTime,
		EndTime:       req.EndTime,
	})
	if err != nil {
		helpers.RespondError(c, "CreateAuctionHandler", err, map[string]any{"seller_id": sellerID})
		return
	}

	utils.JSONResponse(c, http.StatusCreated, helpers.NewAuctionResponse(a), "auction created successfully")
	helpers.LogSuccess("CreateAuctionHandler", "auction created successfully", map[string]any{
		"auction_id": a.ID,
		"seller_id":  sellerID,
		"status":     string(a.Status),
	})
}

// UpdateAuctionHandler handles PUT /auctions/:id
func (h *AuctionHandler) UpdateAuctionHandler(c *gin.Context) {
	id := c.Param("id")
	userID, _ := helpers.CurrentUser(c)

	var req helpers.UpdateAuctionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.HandleBindError(c, "UpdateAuctionHandler", err)
		return
	}

	a, err := h.service.Update(c.Request.Context(), userID, id, auction.UpdateInput{
		Title:       req.Title,
		Description: req.Description,
		StartTime:   req.StartTime,
		EndTime:     req.EndTime,
	})
	if err != nil {
		helpers.RespondError(c, "UpdateAuctionHandler", err, map[string]any{"auction_id": id, "user_id": userID})
		return
	}

	utils.JSONResponse(c, http.StatusOK, helpers.NewAuctionResponse(a), "auction updated successfully")
	helpers.LogSuccess("UpdateAuctionHandler", "auction updated successfully", map[string]any{"auction_id": id})
}

// DeleteAuctionHandler handles DELETE /auctions/:id
func (h *AuctionHandler) DeleteAuctionHandler(c *gin.Context) {
	id := c.Param("id")
	userID, _ := helpers.CurrentUser(c)

	if err := h.service.Delete(c.Request.Context(), userID, id); err != nil {
		helpers.RespondError(c, "DeleteAuctionHandler", err, map[string]any{"auction_id": id, "user_id": userID})
		return
	}

	utils.JSONResponse(c, http.StatusOK, gin.H{"id": id}, "auction deleted successfully")
	helpers.LogSuccess("DeleteAuctionHandler", "auction deleted successfully", map[string]any{"auction_id": id})
}

// UploadImagesHandler handles POST /auctions/:id/images as multipart/form-data
func (h *AuctionHandler) UploadImagesHandler(c *gin.Context) {
	id := c.Param("id")
	userID, _ := helpers.CurrentUser(c)

	form, err := c.MultipartForm()
	if err != nil {
		helpers.HandleBindError(c, "UploadImagesHandler", err)
		return
	}
	files := form.File[imagesField]
	if len(files) == 0 {
		helpers.HandleBindError(c, "UploadImagesHandler", fmt.Errorf("no files in field %q", imagesField))
		return
	}

	uploads := make([]auction.Upload, 0, len(files))
	for _, fh := range files {
		f, err := fh.Open()
		if err != nil {
			closeAll(uploads)
			helpers.RespondError(c, "UploadImagesHandler", fmt.Errorf("handler: open %s: %w", fh.Filename, biddingerrors.ErrValidation), nil)
			return
		}
		uploads = append(uploads, auction.Upload{
			Filename:    fh.Filename,
			ContentType: fh.Header.Get("Content-Type"),
			Size:        fh.Size,
			Body:        f,
		})
	}
	defer closeAll(uploads)

	a, err := h.service.AttachImages(c.Request.Context(), userID, id, uploads)
	if err != nil {
		helpers.RespondError(c, "UploadImagesHandler", err, map[string]any{"auction_id": id, "files": len(files)})
		return
	}

	utils.JSONResponse(c, http.StatusOK, helpers.NewAuctionResponse(a), "images uploaded successfully")
	helpers.LogSuccess("UploadImagesHandler", "images uploaded successfully", map[string]any{
		"auction_id": id,
		"files":      len(files),
	})
}

func closeAll(uploads []auction.Upload) {
	for _, u := range uploads {
		if f, ok := u.Body.(multipart.File); ok {
			_ = f.Close()
		}
	}
}
