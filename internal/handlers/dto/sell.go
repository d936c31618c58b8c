package dto

type SellForm struct {
	Title   string  `form:"title" binding:"required,max=100"`
	Content string  `form:"content" binding:"required"`
	Price   float64 `form:"price" binding:"required,gt=0"`
}

type SellUpdateForm struct {
	Title   string `form:"title" binding:"required,max=100"`
	Content string `form:"content" binding:"required"`
}
